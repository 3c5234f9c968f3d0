package reconciler

import (
	"testing"
	"time"

	"github.com/mothershiphq/mothership/pkg/checkpoint"
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

func newTestReconciler(t *testing.T) (*Reconciler, *storage.BoltStore, *livestate.Cache) {
	t.Helper()

	objects, err := store.New(t.TempDir())
	require.NoError(t, err)

	db, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	live := livestate.New(emptyLoader{})
	engine := checkpoint.New(objects, db, db, live)

	return New(db, engine), db, live
}

func TestReconcileSkipsProjectsWithAutoCheckpointingDisabled(t *testing.T) {
	r, db, live := newTestReconciler(t)

	project := &types.Project{ID: "proj-1", Name: "demo", Settings: types.ProjectSettings{AutoCheckpointInterval: 0}}
	require.NoError(t, db.CreateProject(project))
	rift := &types.Rift{ID: "rift-1", ProjectID: project.ID, Name: "main", Active: true}
	require.NoError(t, db.CreateRift(rift))
	require.NoError(t, live.Set(rift.ID, "a.go", "package main\n"))

	require.NoError(t, r.reconcile())

	list, err := r.checkpoints.ListCheckpoints(rift.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestReconcileCreatesAutoCheckpointForDueActiveRift(t *testing.T) {
	r, db, live := newTestReconciler(t)

	project := &types.Project{ID: "proj-1", Name: "demo", Settings: types.ProjectSettings{AutoCheckpointInterval: time.Millisecond}}
	require.NoError(t, db.CreateProject(project))
	rift := &types.Rift{ID: "rift-1", ProjectID: project.ID, Name: "main", Active: true}
	require.NoError(t, db.CreateRift(rift))
	require.NoError(t, live.Set(rift.ID, "a.go", "package main\n"))

	require.NoError(t, r.reconcile())

	list, err := r.checkpoints.ListCheckpoints(rift.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.True(t, list[0].Auto)
}

func TestReconcileSkipsInactiveRift(t *testing.T) {
	r, db, live := newTestReconciler(t)

	project := &types.Project{ID: "proj-1", Name: "demo", Settings: types.ProjectSettings{AutoCheckpointInterval: time.Millisecond}}
	require.NoError(t, db.CreateProject(project))
	rift := &types.Rift{ID: "rift-1", ProjectID: project.ID, Name: "archived", Active: false}
	require.NoError(t, db.CreateRift(rift))
	require.NoError(t, live.Set(rift.ID, "a.go", "package main\n"))

	require.NoError(t, r.reconcile())

	list, err := r.checkpoints.ListCheckpoints(rift.ID)
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestReconcileRespectsIntervalAcrossCycles(t *testing.T) {
	r, db, live := newTestReconciler(t)

	project := &types.Project{ID: "proj-1", Name: "demo", Settings: types.ProjectSettings{AutoCheckpointInterval: time.Hour}}
	require.NoError(t, db.CreateProject(project))
	rift := &types.Rift{ID: "rift-1", ProjectID: project.ID, Name: "main", Active: true}
	require.NoError(t, db.CreateRift(rift))
	require.NoError(t, live.Set(rift.ID, "a.go", "package main\n"))

	require.NoError(t, r.reconcile())
	require.NoError(t, r.reconcile())

	list, err := r.checkpoints.ListCheckpoints(rift.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "a second cycle within the interval must not create another checkpoint")
}

func TestReconcileEnforcesRetentionCapAfterAutoCheckpointing(t *testing.T) {
	r, db, live := newTestReconciler(t)

	project := &types.Project{
		ID:   "proj-1",
		Name: "demo",
		Settings: types.ProjectSettings{
			AutoCheckpointInterval: time.Nanosecond,
			RetentionCap:           1,
		},
	}
	require.NoError(t, db.CreateProject(project))
	rift := &types.Rift{ID: "rift-1", ProjectID: project.ID, Name: "main", Active: true}
	require.NoError(t, db.CreateRift(rift))
	require.NoError(t, live.Set(rift.ID, "a.go", "v1\n"))

	require.NoError(t, r.reconcile())

	time.Sleep(time.Millisecond)
	require.NoError(t, live.Set(rift.ID, "a.go", "v2\n"))
	r.lastAuto[rift.ID] = time.Time{} // force the interval to be treated as elapsed
	require.NoError(t, r.reconcile())

	list, err := r.checkpoints.ListCheckpoints(rift.ID)
	require.NoError(t, err)
	require.Len(t, list, 1, "retention cap of 1 must trim down to the newest auto checkpoint")
}
