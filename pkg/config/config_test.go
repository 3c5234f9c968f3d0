package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadServerOverridesDefaultsOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_addr: \":9999\"\ncheckpoint:\n  retention_cap: 50\n"), 0o644))

	cfg, err := LoadServer(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.ListenAddr)
	require.Equal(t, 50, cfg.Checkpoint.RetentionCap)
	require.Equal(t, 5*time.Minute, cfg.Checkpoint.AutoInterval) // default preserved
}

func TestLoadAgentParsesWatcherIgnore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server_url: https://mothership.example\nwatcher_ignore:\n  - vendor/\n  - coverage/\n"), 0o644))

	cfg, err := LoadAgent(path)
	require.NoError(t, err)
	require.Equal(t, "https://mothership.example", cfg.ServerURL)
	require.Equal(t, []string{"vendor/", "coverage/"}, cfg.WatcherIgnore)
	require.Equal(t, 5*time.Second, cfg.ReconnectBackoff)
}

func TestLoadServerMissingFileErrors(t *testing.T) {
	_, err := LoadServer(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
