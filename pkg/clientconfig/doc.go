/*
Package clientconfig persists the two JSON files the CLI and agent
read from the user's OS config directory instead of the sync protocol:
connections.json (a named server registry) and credentials.json (a
cached bearer token). Grounded in mothership-cli/src/connections.rs
and auth.rs's StoredCredentials/ConnectionsConfig shapes, translated
to Go with os.UserConfigDir instead of the Rust `dirs` crate.
*/
package clientconfig
