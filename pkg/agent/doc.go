/*
Package agent is the client-side sync daemon: for each tracked project
it maintains a recursive file watcher, a persistent WebSocket to the
project's rift, and the plumbing between them.

	┌──────────────────── Agent ────────────────────┐
	│                                                  │
	│  ┌────────────┐   diffs    ┌─────────────────┐ │
	│  │  Watcher   │──────────▶│  outgoing queue  │ │
	│  │ (fsnotify) │           └────────┬─────────┘ │
	│  └────────────┘                    │            │
	│        ▲                           ▼            │
	│        │ loop suppression   ┌─────────────┐    │
	│        └────────────────────│  Connection │    │
	│                              │ (websocket) │    │
	│                              └─────────────┘    │
	└──────────────────────────────────────────────────┘

A Connection owns the reconnect loop: on failure it backs off, then
redials and re-sends JoinRift with the last known checkpoint so the
server can catch the agent up with a SyncData frame. Health counters
(messages in/out, consecutive errors, reconnects) are exposed through
Health(); no CLI command in this repository reads them.
*/
package agent
