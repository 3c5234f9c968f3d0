package auth

import (
	"testing"
	"time"

	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestVerifier(t *testing.T) (*Verifier, *storage.BoltStore) {
	t.Helper()
	db, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New([]byte("test-signing-key"), db), db
}

func TestVerifyRoundTripsExistingUser(t *testing.T) {
	v, db := newTestVerifier(t)

	user := &types.User{ID: "user-1", Username: "alice", Email: "alice@example.com", Role: types.RoleRegular}
	require.NoError(t, db.CreateUser(user))

	token, err := v.Issue(user, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
}

func TestVerifyRecreatesUserFromClaimsWhenMissing(t *testing.T) {
	v, db := newTestVerifier(t)

	ghost := &types.User{ID: "user-ghost", Username: "bob", Email: "bob@example.com"}
	token, err := v.Issue(ghost, time.Hour)
	require.NoError(t, err)

	got, err := v.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "bob", got.Username)

	reloaded, err := db.GetUser("user-ghost")
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", reloaded.Email)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v, _ := newTestVerifier(t)

	user := &types.User{ID: "user-2", Username: "carol", Email: "carol@example.com"}
	token, err := v.Issue(user, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	require.Error(t, err)
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	v, _ := newTestVerifier(t)

	_, err := v.Verify("not.a.jwt")
	require.Error(t, err)
}
