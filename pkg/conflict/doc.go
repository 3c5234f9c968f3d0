/*
Package conflict implements conflict detection and conflict-rift
auto-creation. Applying an incoming line diff against
the live cache's current content for a path either succeeds (no
conflict) or fails with pkg/diff's ErrMismatchedDiff, meaning the
sender's implicit pre-image has drifted from what the server holds.

On a mismatch the server keeps its own content authoritative for the
rift the edit targeted, and spins up a fresh rift — the incoming
user's sole workspace for that change — seeded with the sender's
intended content. Reconstructing that intended content from a diff
whose pre-image no longer matches anything on the server is inherently
best-effort: reconstructIntent clamps Keep/Delete counts against the
server's own line count rather than refusing outright, so a conflict
rift is still seeded with the closest approximation of the client's
edit rather than nothing.
*/
package conflict
