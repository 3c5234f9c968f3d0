package types

import "time"

// User is an authenticated principal. Issuance and storage of
// credentials are handled outside this package (see pkg/auth); this is
// the shape the sync engine operates on once a token has been verified.
type User struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}

// UserRole defines a user's privilege level.
type UserRole string

const (
	RoleRegular       UserRole = "regular"
	RoleAdministrator UserRole = "administrator"
	RoleSuperAdmin    UserRole = "super-administrator"
)

// Project is a tracked directory shared among a set of users.
type Project struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	OwnerID     string          `json:"owner_id"`
	Members     []string        `json:"members"` // user IDs
	Settings    ProjectSettings `json:"settings"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ProjectSettings controls per-project sync behavior.
type ProjectSettings struct {
	AutoCheckpointInterval time.Duration `json:"auto_checkpoint_interval"` // 0 disables auto-checkpointing
	RetentionCap           int           `json:"retention_cap"`            // 0 means unlimited; only bounds auto checkpoints
	AllowedFilePatterns    []string      `json:"allowed_file_patterns,omitempty"`
}

// Rift is a named, independently evolvable line of development within
// a project, analogous to a branch but with real-time multi-writer
// semantics among its collaborators.
type Rift struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	ParentRiftID     string    `json:"parent_rift_id,omitempty"` // empty for a root rift
	Name             string    `json:"name"`
	Collaborators    []string  `json:"collaborators"` // user IDs
	Active           bool      `json:"active"`
	LatestCheckpoint string    `json:"latest_checkpoint,omitempty"` // checkpoint ID, empty if none yet
	CreatedAt        time.Time `json:"created_at"`
}

// ChangeKind enumerates what happened to a path in a checkpoint.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
	ChangeMoved    ChangeKind = "moved"
)

// FileChange records what happened to one path in a checkpoint.
type FileChange struct {
	Path        string     `json:"path"`
	Kind        ChangeKind `json:"kind"`
	ContentHash string     `json:"content_hash,omitempty"` // lowercase hex SHA-256; empty when Kind == ChangeDeleted
	Size        int64      `json:"size"`
	MovedFrom   string     `json:"moved_from,omitempty"` // set only when Kind == ChangeMoved
	Diff        *FileDiff  `json:"diff,omitempty"`
}

// Checkpoint is an immutable snapshot of a rift's content at a point
// in time.
type Checkpoint struct {
	ID        string       `json:"id"`
	RiftID    string       `json:"rift_id"`
	Author    string       `json:"author"` // username; "system" for reconciler auto checkpoints
	Message   string       `json:"message,omitempty"`
	Auto      bool         `json:"auto"`
	ParentID  string       `json:"parent_id,omitempty"` // empty for genesis; see DESIGN.md open question
	Changes   []FileChange `json:"changes"`
	CreatedAt time.Time    `json:"created_at"`
}

// TransactionStatus enumerates the lifecycle of a Transaction.
type TransactionStatus string

const (
	TxnActive     TransactionStatus = "active"
	TxnPending    TransactionStatus = "pending"
	TxnCommitted  TransactionStatus = "committed"
	TxnRolledBack TransactionStatus = "rolled-back"
)

// Transaction bundles multiple file diffs under one identifier so they
// commit or roll back atomically.
type Transaction struct {
	ID           string               `json:"id"`
	RiftID       string               `json:"rift_id"`
	Author       string               `json:"author"`
	Description  string               `json:"description,omitempty"`
	Status       TransactionStatus    `json:"status"`
	Pending      map[string]*FileDiff `json:"pending"`                // path -> pending diff
	Prerequisite []string             `json:"prerequisite,omitempty"` // transaction IDs that must be committed first
	CreatedAt    time.Time            `json:"created_at"`
	CommittedAt  time.Time            `json:"committed_at,omitempty"`
}

// DiffKind tags the variant carried by a FileDiff.
type DiffKind string

const (
	DiffFullContent DiffKind = "full"
	DiffLine        DiffKind = "line"
	DiffBinary      DiffKind = "binary"
	DiffDeleted     DiffKind = "deleted"
)

// FileDiff is a tagged union over full-content, line-based, binary,
// and deletion representations of a change.
type FileDiff struct {
	Kind DiffKind `json:"kind"`

	// DiffFullContent
	Content string `json:"content,omitempty"`

	// DiffLine
	Ops       []LineOp `json:"ops,omitempty"`
	OrigLines int      `json:"orig_lines,omitempty"`
	NewLines  int      `json:"new_lines,omitempty"`

	// DiffBinary — reserved, not implemented 
	BinaryPatches []byte `json:"binary_patches,omitempty"`
	OrigSize      int64  `json:"orig_size,omitempty"`
	NewSize       int64  `json:"new_size,omitempty"`
}

// LineOpKind enumerates the operations a LineDiff is built from.
type LineOpKind string

const (
	OpKeep    LineOpKind = "keep"
	OpDelete  LineOpKind = "delete"
	OpInsert  LineOpKind = "insert"
	OpReplace LineOpKind = "replace"
)

// LineOp is one step of a LineDiff's edit script.
type LineOp struct {
	Kind  LineOpKind `json:"kind"`
	N     int        `json:"n,omitempty"`     // Keep(n) / Delete(n) / Replace(delete n, ...)
	Lines []string   `json:"lines,omitempty"` // Insert(lines) / Replace(..., insert lines)
}

// DirOpKind enumerates directory CRDT operation payload types.
type DirOpKind string

const (
	DirCreateFile DirOpKind = "create_file"
	DirDeleteFile DirOpKind = "delete_file"
	DirCreateDir  DirOpKind = "create_dir"
	DirDeleteDir  DirOpKind = "delete_dir"
	DirRename     DirOpKind = "rename"
)

// DirOpID identifies a directory CRDT operation by Lamport clock and
// originating site, giving a total order for merge.
type DirOpID struct {
	Clock uint64 `json:"clock"`
	Site  string `json:"site"`
}

// DirOp is one entry in a directory's CRDT operation log.
type DirOp struct {
	ID         DirOpID    `json:"id"`
	Position   []int      `json:"position"` // sibling order vector; "between" is the averaging midpoint
	Kind       DirOpKind  `json:"kind"`
	Name       string     `json:"name"`
	NewName    string     `json:"new_name,omitempty"` // DirRename only
	Tombstoned bool       `json:"tombstoned"`
}
