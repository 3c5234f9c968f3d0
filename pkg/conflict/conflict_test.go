package conflict

import (
	"testing"

	"github.com/mothershiphq/mothership/pkg/livestate"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

type emptyLoader struct{}

func (emptyLoader) FilesAtLatestCheckpoint(riftID string) (map[string]string, error) {
	return map[string]string{}, nil
}

func newTestDetector(t *testing.T) (*Detector, *livestate.Cache, *storage.BoltStore) {
	t.Helper()
	db, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	live := livestate.New(emptyLoader{})
	return New(db, live), live, db
}

func testProjectAndRift() (*types.Project, *types.Rift) {
	project := &types.Project{ID: "proj-1", Name: "demo"}
	rift := &types.Rift{ID: "rift-1", ProjectID: "proj-1", Name: "main"}
	return project, rift
}

func TestHandleAppliesCleanDiffWithoutConflict(t *testing.T) {
	d, live, _ := newTestDetector(t)
	project, rift := testProjectAndRift()

	require.NoError(t, live.Set(rift.ID, "a.go", "line1\nline2\n"))

	fd := types.FileDiff{Kind: types.DiffLine, Ops: []types.LineOp{
		{Kind: types.OpKeep, N: 1},
		{Kind: types.OpReplace, N: 1, Lines: []string{"line2 changed"}},
	}}

	sender := &types.User{ID: "u1", Username: "alice"}
	result, err := d.Handle(project, rift, "a.go", fd, sender)
	require.NoError(t, err)
	require.False(t, result.Conflict)
	require.Equal(t, "line1\nline2 changed", result.NewContent)
}

func TestHandleDetectsConflictAndIsolatesToNewRift(t *testing.T) {
	d, live, db := newTestDetector(t)
	project, rift := testProjectAndRift()

	require.NoError(t, live.Set(rift.ID, "a.go", "only one line\n"))

	// Keep(5) can't be satisfied against a 2-line server file ("only one line\n" splits to 2 lines incl. trailing empty).
	fd := types.FileDiff{Kind: types.DiffLine, Ops: []types.LineOp{
		{Kind: types.OpKeep, N: 5},
		{Kind: types.OpInsert, Lines: []string{"new stuff"}},
	}}

	sender := &types.User{ID: "u2", Username: "bob"}
	result, err := d.Handle(project, rift, "a.go", fd, sender)
	require.NoError(t, err)
	require.True(t, result.Conflict)
	require.Equal(t, "only one line\n", result.ServerContent)
	require.NotNil(t, result.ConflictRift)
	require.Equal(t, []string{"u2"}, result.ConflictRift.Collaborators)
	require.Equal(t, rift.ID, result.ConflictRift.ParentRiftID)

	// The original rift's live content must be untouched.
	content, ok, err := live.Get(rift.ID, "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "only one line\n", content)

	// The conflict rift carries the sender's intended content and was persisted.
	conflictContent, ok, err := live.Get(result.ConflictRift.ID, "a.go")
	require.NoError(t, err)
	require.True(t, ok)
	require.Contains(t, conflictContent, "new stuff")

	stored, err := db.GetRift(result.ConflictRift.ID)
	require.NoError(t, err)
	require.Equal(t, result.ConflictRift.Name, stored.Name)
}
