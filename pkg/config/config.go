package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Server configures the mothership-server binary.
type Server struct {
	ListenAddr string `yaml:"listen_addr"`
	StorageRoot string `yaml:"storage_root"`
	DataDir    string `yaml:"data_dir"`

	Raft struct {
		ReplicaID string   `yaml:"replica_id"`
		BindAddr  string   `yaml:"bind_addr"`
		Bootstrap bool     `yaml:"bootstrap"`
		Peers     []string `yaml:"peers,omitempty"`
	} `yaml:"raft"`

	Auth struct {
		JWTSigningKey string `yaml:"jwt_signing_key"`
	} `yaml:"auth"`

	Checkpoint struct {
		AutoInterval time.Duration `yaml:"auto_interval"`
		RetentionCap int           `yaml:"retention_cap"`
	} `yaml:"checkpoint"`

	Log struct {
		Level      string `yaml:"level"`
		JSONOutput bool   `yaml:"json_output"`
	} `yaml:"log"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// Agent configures the mothership-agent binary.
type Agent struct {
	ServerURL        string        `yaml:"server_url"`
	ProjectRoot      string        `yaml:"project_root"`
	ProjectID        string        `yaml:"project_id"`
	RiftID           string        `yaml:"rift_id"`
	Token            string        `yaml:"token"`
	LastCheckpoint   string        `yaml:"last_checkpoint,omitempty"`
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	WatcherIgnore []string `yaml:"watcher_ignore,omitempty"`

	Log struct {
		Level      string `yaml:"level"`
		JSONOutput bool   `yaml:"json_output"`
	} `yaml:"log"`
}

// DefaultServer returns a Server config with defaulting
// pattern: sane values a caller only needs to override selectively.
func DefaultServer() Server {
	var s Server
	s.ListenAddr = ":8080"
	s.StorageRoot = "/var/lib/mothership"
	s.DataDir = "/var/lib/mothership/raft"
	s.Raft.Bootstrap = true
	s.Checkpoint.AutoInterval = 5 * time.Minute
	s.Checkpoint.RetentionCap = 200
	s.Log.Level = "info"
	s.MetricsAddr = ":9090"
	return s
}

// DefaultAgent returns an Agent config with sane defaults.
func DefaultAgent() Agent {
	var a Agent
	a.ReconnectBackoff = 5 * time.Second
	a.Log.Level = "info"
	return a
}

// LoadServer reads and parses a Server config from path, starting from
// DefaultServer so unset fields keep their defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read server config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse server config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadAgent reads and parses an Agent config from path, starting from
// DefaultAgent so unset fields keep their defaults.
func LoadAgent(path string) (Agent, error) {
	cfg := DefaultAgent()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read agent config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse agent config %s: %w", path, err)
	}
	return cfg, nil
}
