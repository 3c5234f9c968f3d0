/*
Package client is a small Go client library for the mothership HTTP
API: listing and creating projects, beaming into a rift
to get a WebSocket endpoint, and the few other REST calls the CLI and
agent need before they open a sync connection.

	┌──────────────── APPLICATION CODE ────────────────┐
	│  c := client.New("https://mothership.example:8080", token) │
	│  resp, err := c.Beam(ctx, projectID, "main", false)         │
	└──────────────────────────────────────────────────┘

There is no generated stub here: the wire format is plain JSON over
net/http, matching the server's pkg/httpapi handlers and wrapped in
protocol.APIResponse.
*/
package client
