package clientconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConnectionsDefaultsWhenAbsent(t *testing.T) {
	s := NewAt(t.TempDir())
	cfg, err := s.LoadConnections()
	require.NoError(t, err)
	require.Empty(t, cfg.ActiveServer)
	require.NotNil(t, cfg.Servers)
}

func TestSaveAndLoadConnectionsRoundTrip(t *testing.T) {
	s := NewAt(t.TempDir())
	cfg := Connections{
		ActiveServer: "prod",
		Servers: map[string]ServerConnection{
			"prod": {Name: "prod", URL: "https://mothership.example", AuthMethod: "oauth", ConnectedAt: time.Now().Truncate(time.Second)},
		},
	}
	require.NoError(t, s.SaveConnections(cfg))

	got, err := s.LoadConnections()
	require.NoError(t, err)
	require.Equal(t, "prod", got.ActiveServer)
	require.Equal(t, "https://mothership.example", got.Servers["prod"].URL)
}

func TestCredentialsRoundTripAndClear(t *testing.T) {
	s := NewAt(t.TempDir())

	none, err := s.LoadCredentials()
	require.NoError(t, err)
	require.Nil(t, none)

	require.NoError(t, s.SaveCredentials(Credentials{AccessToken: "tok-123", StoredAt: time.Now()}))

	got, err := s.LoadCredentials()
	require.NoError(t, err)
	require.Equal(t, "tok-123", got.AccessToken)

	require.NoError(t, s.ClearCredentials())
	gone, err := s.LoadCredentials()
	require.NoError(t, err)
	require.Nil(t, gone)
}
