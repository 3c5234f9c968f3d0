package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mothershiphq/mothership/pkg/auth"
	"github.com/mothershiphq/mothership/pkg/checkpoint"
	"github.com/mothershiphq/mothership/pkg/livestate"
	"github.com/mothershiphq/mothership/pkg/protocol"
	"github.com/mothershiphq/mothership/pkg/store"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
)

type emptyLoader struct{}

func (emptyLoader) FilesAtLatestCheckpoint(riftID string) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.BoltStore, *auth.Verifier) {
	t.Helper()

	objects, err := store.New(t.TempDir())
	require.NoError(t, err)
	db, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	live := livestate.New(emptyLoader{})
	checkpoints := checkpoint.New(objects, db, db, live)
	verifier := auth.New([]byte("test-signing-key"), db)

	s := New(db, db, verifier, checkpoints, types.ProjectSettings{})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, db, verifier
}

func seedUser(t *testing.T, db *storage.BoltStore, verifier *auth.Verifier, id, username string) (*types.User, string) {
	t.Helper()
	user := &types.User{ID: id, Username: username, Email: username + "@example.com", Role: types.RoleRegular}
	require.NoError(t, db.CreateUser(user))
	token, err := verifier.Issue(user, time.Hour)
	require.NoError(t, err)
	return user, token
}

func doRequest(t *testing.T, method, url, token string, body interface{}) (*http.Response, protocol.APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env protocol.APIResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func TestHealthRequiresNoAuth(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, env := doRequest(t, http.MethodGet, srv.URL+"/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)
}

func TestGatewayRejectsMissingToken(t *testing.T) {
	srv, _, _ := newTestServer(t)
	resp, env := doRequest(t, http.MethodGet, srv.URL+"/gateway", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.False(t, env.Success)
}

func TestCreateProjectAndBeamCreatesDefaultRift(t *testing.T) {
	srv, db, verifier := newTestServer(t)
	_, token := seedUser(t, db, verifier, "u1", "alice")

	resp, env := doRequest(t, http.MethodPost, srv.URL+"/gateway/create", token, map[string]string{
		"name":        "demo",
		"description": "a demo project",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.True(t, env.Success)

	var project types.Project
	data, err := json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &project))
	require.Equal(t, "demo", project.Name)

	resp, env = doRequest(t, http.MethodPost, srv.URL+"/projects/"+project.ID+"/beam", token, protocol.BeamRequest{ProjectID: project.ID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)

	var beam protocol.BeamResponse
	data, err = json.Marshal(env.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &beam))
	require.Equal(t, project.ID, beam.ProjectID)
	require.True(t, beam.InitialSyncRequired)
	require.Contains(t, beam.WebSocketURL, "/sync/"+beam.RiftID)
}

func TestGetProjectRejectsNonMember(t *testing.T) {
	srv, db, verifier := newTestServer(t)
	_, ownerToken := seedUser(t, db, verifier, "u1", "alice")
	_, outsiderToken := seedUser(t, db, verifier, "u2", "mallory")

	_, env := doRequest(t, http.MethodPost, srv.URL+"/gateway/create", ownerToken, map[string]string{"name": "secret"})
	var project types.Project
	data, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(data, &project))

	resp, env := doRequest(t, http.MethodGet, srv.URL+"/projects/"+project.ID, outsiderToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.False(t, env.Success)
}

func TestDeleteProjectRequiresOwnership(t *testing.T) {
	srv, db, verifier := newTestServer(t)
	_, ownerToken := seedUser(t, db, verifier, "u1", "alice")
	_, outsiderToken := seedUser(t, db, verifier, "u2", "mallory")

	_, env := doRequest(t, http.MethodPost, srv.URL+"/gateway/create", ownerToken, map[string]string{"name": "demo2"})
	var project types.Project
	data, _ := json.Marshal(env.Data)
	require.NoError(t, json.Unmarshal(data, &project))

	resp, env := doRequest(t, http.MethodDelete, srv.URL+"/projects/"+project.ID, outsiderToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.False(t, env.Success)

	resp, env = doRequest(t, http.MethodDelete, srv.URL+"/projects/"+project.ID, ownerToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, env.Success)
}
