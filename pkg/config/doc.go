/*
Package config holds the YAML-based configuration structs for the
mothership binaries: Server (storage, raft peers, checkpoint/retention
defaults) and Agent (server URL, project root, reconnect backoff, the
project/rift/token a single agent run targets). Fields follow
`gopkg.in/yaml.v3` tag conventions; mothership-server and
mothership-agent layer their cobra flag overrides on top in each
command's RunE, after the YAML file is loaded.
*/
package config
