package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mothershiphq/mothership/pkg/types"
)

// MessageType is the discriminator carried in an Envelope's "type" field.
type MessageType string

const (
	// Client -> server
	TypeJoinRift             MessageType = "JoinRift"
	TypeLeaveRift            MessageType = "LeaveRift"
	TypeFileChanged          MessageType = "FileChanged" // legacy
	TypeFileDiffChanged      MessageType = "FileDiffChanged"
	TypeBatchDiffChanges     MessageType = "BatchDiffChanges"
	TypeCreateCheckpoint     MessageType = "CreateCheckpoint"
	TypeRequestSync          MessageType = "RequestSync"
	TypeBeginTransaction     MessageType = "BeginTransaction"
	TypeAddFileModification  MessageType = "AddFileModification"
	TypeAddFileCreation      MessageType = "AddFileCreation"
	TypeAddFileDeletion      MessageType = "AddFileDeletion"
	TypeCommitTransaction    MessageType = "CommitTransaction"
	TypeRollbackTransaction  MessageType = "RollbackTransaction"
	TypeDirectoryUpdate      MessageType = "DirectoryUpdate"
	TypeRequestLatestContent MessageType = "RequestLatestContent"
	TypeContentResponse      MessageType = "ContentResponse"

	// Server -> client
	TypeRiftUpdate         MessageType = "RiftUpdate"
	TypeRiftDiffUpdate     MessageType = "RiftDiffUpdate"
	TypeCheckpointCreated  MessageType = "CheckpointCreated"
	TypeSyncData           MessageType = "SyncData"
	TypeCollaboratorJoined MessageType = "CollaboratorJoined"
	TypeCollaboratorLeft   MessageType = "CollaboratorLeft"
	TypeConflictDetected   MessageType = "ConflictDetected"
	TypeConflictRiftCreated MessageType = "ConflictRiftCreated"
	TypeFileUpdate         MessageType = "FileUpdate"
	TypeFileDiffUpdate     MessageType = "FileDiffUpdate"
	TypeForceSync          MessageType = "ForceSync"
	TypeError              MessageType = "Error"
	TypeTransactionStatus  MessageType = "TransactionStatus"

	// Bidirectional
	TypeHeartbeat MessageType = "Heartbeat"
)

// Envelope is the wire shape of every frame.
type Envelope struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode wraps a typed payload into an Envelope and marshals it.
func Encode(t MessageType, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", t, err)
	}
	env := Envelope{Type: t, Data: data}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return out, nil
}

// Decode unmarshals an Envelope and, via into, its typed payload.
func Decode(raw []byte, into interface{}) (MessageType, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("malformed envelope: %w", err)
	}
	if into != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, into); err != nil {
			return env.Type, fmt.Errorf("malformed %s payload: %w", env.Type, err)
		}
	}
	return env.Type, nil
}

// ---- Client -> server payloads ----

type JoinRift struct {
	RiftID         string `json:"rift_id"`
	LastCheckpoint string `json:"last_checkpoint,omitempty"`
}

type LeaveRift struct {
	RiftID string `json:"rift_id"`
}

type FileChanged struct {
	RiftID    string    `json:"rift_id"`
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type FileDiffChanged struct {
	RiftID    string          `json:"rift_id"`
	Path      string          `json:"path"`
	Diff      types.FileDiff  `json:"diff"`
	FileSize  int64           `json:"file_size"`
	Timestamp time.Time       `json:"timestamp"`
}

type FileDiffChange struct {
	Path     string         `json:"path"`
	Diff     types.FileDiff `json:"diff"`
	FileSize int64          `json:"file_size"`
}

type BatchDiffChanges struct {
	RiftID     string           `json:"rift_id"`
	Changes    []FileDiffChange `json:"changes"`
	Timestamp  time.Time        `json:"timestamp"`
	Compressed bool             `json:"compressed"`
}

type CreateCheckpoint struct {
	RiftID  string `json:"rift_id"`
	Message string `json:"message,omitempty"`
}

type RequestSync struct {
	RiftID         string `json:"rift_id"`
	FromCheckpoint string `json:"from_checkpoint,omitempty"`
}

type BeginTransaction struct {
	TransactionID string `json:"transaction_id"`
	Description   string `json:"description"`
	Author        string `json:"author"`
	RiftID        string `json:"rift_id"`
}

type AddFileModification struct {
	TransactionID string         `json:"transaction_id"`
	Path          string         `json:"path"`
	Diff          types.FileDiff `json:"diff"`
	PreviousHash  string         `json:"previous_hash"`
}

type AddFileCreation struct {
	TransactionID string `json:"transaction_id"`
	Path          string `json:"path"`
	Content       string `json:"content"`
}

type AddFileDeletion struct {
	TransactionID string `json:"transaction_id"`
	Path          string `json:"path"`
	PreviousHash  string `json:"previous_hash"`
}

type CommitTransaction struct {
	TransactionID string `json:"transaction_id"`
}

type RollbackTransaction struct {
	TransactionID string `json:"transaction_id"`
}

type DirectoryUpdate struct {
	Path       string         `json:"path"`
	Operations []types.DirOp  `json:"crdt_operations"`
	Timestamp  time.Time      `json:"timestamp"`
}

type RequestLatestContent struct {
	Path string `json:"path"`
}

type ContentResponse struct {
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ---- Server -> client payloads ----

type RiftUpdate struct {
	RiftID    string             `json:"rift_id"`
	Changes   []types.FileChange `json:"changes"`
	Author    string             `json:"author"`
	Timestamp time.Time          `json:"timestamp"`
}

type RiftDiffUpdate struct {
	RiftID     string           `json:"rift_id"`
	DiffChanges []FileDiffChange `json:"diff_changes"`
	Author     string           `json:"author"`
	Timestamp  time.Time        `json:"timestamp"`
	Compressed bool             `json:"compressed"`
}

type CheckpointCreated struct {
	RiftID       string    `json:"rift_id"`
	CheckpointID string    `json:"checkpoint_id"`
	Author       string    `json:"author"`
	Timestamp    time.Time `json:"timestamp"`
	Message      string    `json:"message,omitempty"`
}

type SyncFile struct {
	Path       string    `json:"path"`
	Content    string    `json:"content"`
	Hash       string    `json:"hash"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

type SyncData struct {
	RiftID       string     `json:"rift_id"`
	CheckpointID string     `json:"checkpoint_id"`
	Files        []SyncFile `json:"files"`
}

type CollaboratorJoined struct {
	RiftID   string `json:"rift_id"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

type CollaboratorLeft struct {
	RiftID string `json:"rift_id"`
	UserID string `json:"user_id"`
}

type ConflictRiftInfo struct {
	RiftID   string `json:"rift_id"`
	RiftName string `json:"rift_name"`
}

type ConflictDetected struct {
	RiftID           string            `json:"rift_id"`
	Path             string            `json:"path"`
	ServerContent    string            `json:"server_content"`
	ClientDiff       types.FileDiff    `json:"client_diff"`
	ServerTimestamp  time.Time         `json:"server_timestamp"`
	ClientTimestamp  time.Time         `json:"client_timestamp"`
	AutoCreatedRift  *ConflictRiftInfo `json:"auto_created_rift,omitempty"`
}

type ConflictRiftCreated struct {
	OriginalRiftID    string `json:"original_rift_id"`
	NewRiftID         string `json:"new_rift_id"`
	ConflictRiftName  string `json:"conflict_rift_name"`
}

type FileUpdate struct {
	RiftID    string    `json:"rift_id"`
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

type FileDiffUpdate struct {
	RiftID        string         `json:"rift_id"`
	Path          string         `json:"path"`
	Diff          types.FileDiff `json:"diff"`
	Author        string         `json:"author"`
	Timestamp     time.Time      `json:"timestamp"`
	FileSizeAfter int64          `json:"file_size_after"`
}

type ForceSync struct {
	Path            string    `json:"path"`
	ServerContent   string    `json:"server_content"`
	ServerTimestamp time.Time `json:"server_timestamp"`
}

type Error struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
}

type TransactionStatus struct {
	TransactionID string `json:"transaction_id"`
	Status        types.TransactionStatus `json:"status"`
	Error         string `json:"error,omitempty"`
}

// Heartbeat carries no payload in either direction.
type Heartbeat struct{}

// ---- HTTP API request/response shapes  ----

// APIResponse is the envelope every HTTP API handler returns.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// GatewayRequest lists the caller's accessible projects.
type GatewayRequest struct {
	IncludeInactive bool `json:"include_inactive"`
}

// BeamRequest asks the server to join (or create) a rift within a
// project and hand back a WebSocket endpoint to sync through.
type BeamRequest struct {
	ProjectID  string `json:"project_id"`
	RiftName   string `json:"rift_name,omitempty"` // empty selects the project's "main" rift
	ForceSync  bool   `json:"force_sync"`
}

// BeamResponse answers a BeamRequest.
type BeamResponse struct {
	ProjectID            string `json:"project_id"`
	RiftID               string `json:"rift_id"`
	WebSocketURL         string `json:"websocket_url"`
	InitialSyncRequired  bool   `json:"initial_sync_required"`
	CheckpointCount      int    `json:"checkpoint_count"`
}
