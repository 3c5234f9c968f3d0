package txn

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mothershiphq/mothership/pkg/livestate"
	"github.com/mothershiphq/mothership/pkg/store"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

type emptyLoader struct{}

func (emptyLoader) FilesAtLatestCheckpoint(riftID string) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestManager(t *testing.T, idleTimeout time.Duration) (*Manager, *livestate.Cache) {
	t.Helper()

	objects, err := store.New(t.TempDir())
	require.NoError(t, err)

	db, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	live := livestate.New(emptyLoader{})
	return New(objects, db, live, idleTimeout), live
}

func TestBeginAddCommitAppliesInOrder(t *testing.T) {
	m, live := newTestManager(t, time.Minute)

	txnID := uuid.NewString()
	_, err := m.Begin(txnID, "rift-1", "alice", "rename symbol", nil)
	require.NoError(t, err)

	require.NoError(t, m.AddFileCreation(txnID, "b.go", "package main\n"))
	require.NoError(t, m.AddFileModification(txnID, "a.go", types.FileDiff{Kind: types.DiffFullContent, Content: "changed\n"}))

	got, err := m.Commit(txnID)
	require.NoError(t, err)
	require.Equal(t, types.TxnCommitted, got.Status)

	content, ok, err := live.Get("rift-1", "b.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "package main\n", content)
}

func TestCommitFailsOnMissingPrerequisite(t *testing.T) {
	m, _ := newTestManager(t, time.Minute)

	txnID := uuid.NewString()
	_, err := m.Begin(txnID, "rift-1", "alice", "depends on ghost", []string{"never-existed"})
	require.NoError(t, err)
	require.NoError(t, m.AddFileCreation(txnID, "a.go", "x"))

	_, err = m.Commit(txnID)
	require.Error(t, err)
}

func TestRollbackRestoresPreImage(t *testing.T) {
	m, live := newTestManager(t, time.Minute)

	require.NoError(t, live.Set("rift-1", "a.go", "original\n"))

	txnID := uuid.NewString()
	_, err := m.Begin(txnID, "rift-1", "alice", "edit", nil)
	require.NoError(t, err)
	require.NoError(t, m.AddFileModification(txnID, "a.go", types.FileDiff{Kind: types.DiffFullContent, Content: "edited\n"}))

	got, err := m.Rollback(txnID)
	require.NoError(t, err)
	require.Equal(t, types.TxnRolledBack, got.Status)

	content, ok, err := live.Get("rift-1", "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "original\n", content, "rollback before commit must leave the pre-add content untouched")
}

func TestRollbackAfterPartialCommitRestoresAppliedOps(t *testing.T) {
	m, live := newTestManager(t, time.Minute)
	require.NoError(t, live.Set("rift-1", "a.go", "original a\n"))

	txnID := uuid.NewString()
	_, err := m.Begin(txnID, "rift-1", "alice", "two files, one bad diff", nil)
	require.NoError(t, err)
	require.NoError(t, m.AddFileModification(txnID, "a.go", types.FileDiff{Kind: types.DiffFullContent, Content: "changed a\n"}))
	// A line diff with an impossible keep-count against an empty pre-image fails to apply.
	require.NoError(t, m.AddFileModification(txnID, "z.go", types.FileDiff{Kind: types.DiffLine, Ops: []types.LineOp{{Kind: types.OpKeep, N: 5}}}))

	_, err = m.Commit(txnID)
	require.Error(t, err)

	content, ok, err := live.Get("rift-1", "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "original a\n", content, "a.go's successful apply must be undone when z.go fails")
}

func TestAutoRollbackFiresAfterIdleTimeout(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Millisecond)

	txnID := uuid.NewString()
	_, err := m.Begin(txnID, "rift-1", "alice", "forgotten", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := m.db.GetTransaction(txnID)
		return err == nil && got.Status == types.TxnRolledBack
	}, time.Second, 10*time.Millisecond)
}
