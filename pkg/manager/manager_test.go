package manager

import (
	"fmt"
	"testing"
	"time"

	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

func newBootstrappedManager(t *testing.T) (*Manager, storage.Store) {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	port := 17000 + (int(time.Now().UnixNano()) % 1000)
	m, err := New(Config{
		ReplicaID: "replica-1",
		BindAddr:  fmt.Sprintf("127.0.0.1:%d", port),
		DataDir:   t.TempDir(),
		Store:     store,
	})
	require.NoError(t, err)
	require.NoError(t, m.Bootstrap())
	t.Cleanup(func() { m.Shutdown() })

	require.Eventually(t, m.IsLeader, 5*time.Second, 20*time.Millisecond)
	return m, store
}

func TestBootstrapBecomesLeader(t *testing.T) {
	m, _ := newBootstrappedManager(t)
	require.True(t, m.IsLeader())
}

func TestCreateProjectReplicatesToStore(t *testing.T) {
	m, store := newBootstrappedManager(t)

	p := &types.Project{ID: "proj-1", Name: "demo", OwnerID: "user-1"}
	require.NoError(t, m.CreateProject(p))

	got, err := store.GetProject("proj-1")
	require.NoError(t, err)
	require.Equal(t, "demo", got.Name)
}

func TestCreateCheckpointAndDeleteRoundTrip(t *testing.T) {
	m, store := newBootstrappedManager(t)

	cp := &types.Checkpoint{ID: "cp-1", RiftID: "rift-1"}
	require.NoError(t, m.CreateCheckpoint(cp))

	list, err := store.ListCheckpointsByRift("rift-1")
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, m.DeleteCheckpoint("cp-1", "rift-1"))
	list, err = store.ListCheckpointsByRift("rift-1")
	require.NoError(t, err)
	require.Len(t, list, 0)
}

func TestApplyWithoutBootstrapFails(t *testing.T) {
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	m, err := New(Config{ReplicaID: "r1", BindAddr: "127.0.0.1:17999", DataDir: t.TempDir(), Store: store})
	require.NoError(t, err)

	err = m.CreateProject(&types.Project{ID: "p1"})
	require.Error(t, err)
}
