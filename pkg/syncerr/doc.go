/*
Package syncerr defines the small set of sentinel errors the sync
protocol's error taxonomy maps onto. Handlers return these (wrapped
with fmt.Errorf("...: %w", err)) and the WebSocket dispatch boundary
unwraps them with errors.Is/errors.As to decide which protocol.Error
code to send back, mirroring ensureLeader-style guard
functions that return a typed sentinel for the caller to branch on.
*/
package syncerr
