/*
Package types defines the core data structures shared across the
Mothership sync engine: users, projects, rifts, checkpoints, file
changes, diffs, transactions, and the directory CRDT operation log.

These types are serialized as JSON both over the wire (the WebSocket
sync protocol) and at rest (BoltDB-backed checkpoint and project
metadata). They carry no persistence or network logic themselves —
pkg/store, pkg/storage, and pkg/session own that.

# Enumeration pattern

Enums are typed string constants, matching the rest of the codebase:

	type ChangeKind string
	const (
		ChangeCreated  ChangeKind = "created"
		ChangeModified ChangeKind = "modified"
	)

# Optional fields

Optional associations use pointers or empty-string sentinels:
  - Checkpoint.ParentID == "" means a genesis checkpoint.
  - FileChange.Diff == nil means the checkpoint only recorded the
    resulting content hash, not an embedded diff.
*/
package types
