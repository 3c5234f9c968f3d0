/*
Package storage provides BoltDB-backed persistence for the sync
engine's metadata: users, projects, rifts, checkpoints, and
transactions. Object content itself lives in pkg/store; this package
only ever holds the smaller structured records that point into it.

Each entity type gets its own bucket, keyed by ID, with records
serialized as JSON:

	┌──────────────────── BOLTDB STORAGE ──────────────────────┐
	│  File: <dataDir>/mothership.db                            │
	│                                                            │
	│  buckets:                                                  │
	│    users         (User ID)                                 │
	│    projects      (Project ID)                              │
	│    rifts         (Rift ID)                                 │
	│    checkpoints   (Checkpoint ID, indexed by rift below)     │
	│    transactions  (Transaction ID)                           │
	└────────────────────────────────────────────────────────────┘

Checkpoints additionally need "all checkpoints for rift X in creation
order" for replay and retention trimming; that index is kept as a
second bucket mapping rift ID to a JSON list of checkpoint IDs rather
than a relational query, since bbolt has no secondary indexes.

Writes use db.Update, reads use db.View, following bbolt's standard
transaction model.
*/
package storage
