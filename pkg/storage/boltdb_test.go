package storage

import (
	"testing"
	"time"

	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestProjectCRUD(t *testing.T) {
	s := newTestStore(t)

	p := &types.Project{ID: "proj-1", Name: "demo", OwnerID: "user-1", CreatedAt: time.Unix(0, 0)}
	require.NoError(t, s.CreateProject(p))

	got, err := s.GetProject("proj-1")
	require.NoError(t, err)
	require.Equal(t, "demo", got.Name)

	byName, err := s.GetProjectByName("demo")
	require.NoError(t, err)
	require.Equal(t, "proj-1", byName.ID)

	p.Description = "updated"
	require.NoError(t, s.UpdateProject(p))
	got, err = s.GetProject("proj-1")
	require.NoError(t, err)
	require.Equal(t, "updated", got.Description)

	list, err := s.ListProjects()
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteProject("proj-1"))
	_, err = s.GetProject("proj-1")
	require.Error(t, err)
}

func TestRiftLookupByProjectAndName(t *testing.T) {
	s := newTestStore(t)

	r := &types.Rift{ID: "rift-1", ProjectID: "proj-1", Name: "main", Active: true}
	require.NoError(t, s.CreateRift(r))

	got, err := s.GetRiftByName("proj-1", "main")
	require.NoError(t, err)
	require.Equal(t, "rift-1", got.ID)

	list, err := s.ListRiftsByProject("proj-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = s.GetRiftByName("proj-1", "missing")
	require.Error(t, err)
}

func TestCheckpointIndexPerRift(t *testing.T) {
	s := newTestStore(t)

	cp1 := &types.Checkpoint{ID: "cp-1", RiftID: "rift-1", CreatedAt: time.Unix(1, 0)}
	cp2 := &types.Checkpoint{ID: "cp-2", RiftID: "rift-1", CreatedAt: time.Unix(2, 0)}
	cp3 := &types.Checkpoint{ID: "cp-3", RiftID: "rift-2", CreatedAt: time.Unix(3, 0)}
	require.NoError(t, s.CreateCheckpoint(cp1))
	require.NoError(t, s.CreateCheckpoint(cp2))
	require.NoError(t, s.CreateCheckpoint(cp3))

	list, err := s.ListCheckpointsByRift("rift-1")
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, s.DeleteCheckpoint("cp-1", "rift-1"))
	list, err = s.ListCheckpointsByRift("rift-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "cp-2", list[0].ID)

	_, err = s.GetCheckpoint("cp-1")
	require.Error(t, err)
}

func TestTransactionCRUD(t *testing.T) {
	s := newTestStore(t)

	txn := &types.Transaction{ID: "txn-1", RiftID: "rift-1", Status: types.TxnActive}
	require.NoError(t, s.CreateTransaction(txn))

	got, err := s.GetTransaction("txn-1")
	require.NoError(t, err)
	require.Equal(t, types.TxnActive, got.Status)

	txn.Status = types.TxnCommitted
	require.NoError(t, s.UpdateTransaction(txn))
	got, err = s.GetTransaction("txn-1")
	require.NoError(t, err)
	require.Equal(t, types.TxnCommitted, got.Status)

	list, err := s.ListTransactionsByRift("rift-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, s.DeleteTransaction("txn-1"))
	_, err = s.GetTransaction("txn-1")
	require.Error(t, err)
}
