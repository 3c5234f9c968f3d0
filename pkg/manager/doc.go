/*
Package manager replicates the sync engine's metadata — projects,
rifts, and checkpoints — across server replicas using Raft consensus,
so a standby replica can take over with no metadata loss if the
current leader goes down.

	┌────────────────── SERVER REPLICA ──────────────────┐
	│  Manager                                             │
	│    - Apply(project/rift/checkpoint change)           │
	│    - routed through raft.Apply on the leader         │
	│  FSM                                                 │
	│    - applies committed log entries to storage.Store  │
	│    - Snapshot/Restore for log compaction             │
	└───────────────────────────────────────────────────────┘

Object content (pkg/store) is never replicated through raft: its
write-once, content-addressed design makes it trivial to shard or
mirror independently, so only the smaller structured metadata needs
consensus. Only the leader may Apply; a write on a follower returns
an error, and pkg/httpapi does not redirect it to the leader.
*/
package manager
