/*
Package protocol defines the wire format of the rift sync WebSocket
protocol: a tagged union carried as JSON text frames,

	{ "type": "FileDiffChanged", "data": { ... } }

Envelope is the outer shape every frame takes. Each variant's payload
is a concrete Go struct; Encode/Decode convert between a typed message
and the envelope. There is deliberately no single giant interface —
handlers type-switch on the decoded payload.
*/
package protocol
