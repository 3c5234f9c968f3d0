/*
Package checkpoint implements the checkpoint engine: create_checkpoint,
load_checkpoint, files_at_checkpoint, and list_checkpoints. Creating a
checkpoint reads a rift's current live state, stores every file's
content as a content-addressed blob via pkg/store, records one
types.FileChange per file, and persists the metadata through
pkg/storage (and, when replication is enabled, via pkg/manager's raft
FSM so the write survives a leader failover). An in-memory map caches
recently accessed checkpoints, keeping a hot read path without
re-decoding JSON on every access.

Engine implements pkg/livestate.Loader, so a rift's first JoinRift
rehydrates the live cache from this package without either package
importing the other's concrete type.
*/
package checkpoint
