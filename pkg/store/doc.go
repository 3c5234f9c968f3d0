/*
Package store implements the content-addressed blob store: a flat,
write-once namespace keyed by the SHA-256 of its content, used to back
every Checkpoint's file contents.

Blobs are never mutated or deleted by this package; garbage collection
is out of scope. Writing the same bytes twice is a no-op, which is
what makes the store trivial to shard or replicate.
*/
package store
