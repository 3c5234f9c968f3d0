/*
Package metrics declares every Prometheus collector mothership-server
exposes: project/rift/checkpoint counts, bus fan-out size, conflict and
transaction counters, raft replication state, HTTP and WebSocket
traffic, diff compute time, and reconciler cycles. All collectors are
registered against the default registry in this package's init(), so
importing it for its side effect is enough to have a metric show up at
Handler()'s /metrics endpoint.

Timer is a small helper around time.Now()/time.Since() for the common
"measure this call, then observe it into a histogram" pattern; its
ObserveDurationVec variant threads through per-call labels (HTTP
method, message direction) that aren't known until the call completes.
*/
package metrics
