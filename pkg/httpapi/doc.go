/*
Package httpapi implements HTTP surface: project/rift
gateway and lifecycle operations consumed by pkg/client and, in turn,
by the CLI and sync agent.

Routing follows pkg/api/health.go shape (one handler per
endpoint registered against a router, wrapped with a metrics
middleware) generalized from http.ServeMux to gorilla/mux for
path-parameter extraction, the same router pkg/session uses for its
/sync/{riftID} route. Every response is wrapped in protocol.APIResponse,
mirroring HealthResponse/ReadyResponse envelope pattern.
*/
package httpapi
