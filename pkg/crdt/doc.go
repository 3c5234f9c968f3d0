/*
Package crdt implements the directory operation-log CRDT: creates,
deletes, and renames of files and directories merge
conflict-free across collaborators, while file content itself stays
last-writer-wins (pkg/livestate, with the conflict-rift escape in
pkg/conflict).

Each operation carries a types.DirOpID (Lamport clock, site ID) and a
position vector used to order siblings, with Between computing a
midpoint position the way mothership-common/src/crdt.rs's
LogicalPosition::between does. Merge takes the union of two logs,
unions their tombstone sets, and advances the local clock past the
merged peer's — ported from that same file's RiftCRDT::merge, not
translated line for line.
*/
package crdt
