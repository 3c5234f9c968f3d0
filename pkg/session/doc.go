/*
Package session implements the server side of the rift sync
WebSocket protocol: one gorilla/websocket connection per
collaborator per rift, admitted through a bearer token (pkg/auth) and
rift-collaborator check, fanned out through pkg/bus, and dispatched
against pkg/checkpoint, pkg/txn, pkg/conflict, and pkg/crdt.

The read and write halves of a connection are grounded in
pkg/agent/connection.go's client-side shape (separate read/write
goroutines racing on a done channel, a bounded outgoing queue, a
periodic heartbeat) mirrored for the server side of the same wire
contract.
*/
package session
