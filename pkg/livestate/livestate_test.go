package livestate

import (
	"testing"

	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	files map[string]map[string]string
	calls int
}

func (f *fakeLoader) FilesAtLatestCheckpoint(riftID string) (map[string]string, error) {
	f.calls++
	out := make(map[string]string)
	for k, v := range f.files[riftID] {
		out[k] = v
	}
	return out, nil
}

func TestGetRehydratesOnce(t *testing.T) {
	loader := &fakeLoader{files: map[string]map[string]string{
		"rift-1": {"a.txt": "hello"},
	}}
	c := New(loader)

	content, ok, err := c.Get("rift-1", "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", content)

	_, _, err = c.Get("rift-1", "missing.txt")
	require.NoError(t, err)
	require.Equal(t, 1, loader.calls)
}

func TestSetAndSnapshot(t *testing.T) {
	loader := &fakeLoader{files: map[string]map[string]string{"r": {}}}
	c := New(loader)

	require.NoError(t, c.Set("r", "a.txt", "one"))
	require.NoError(t, c.Set("r", "b.txt", "two"))

	snap, err := c.Snapshot("r")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a.txt": "one", "b.txt": "two"}, snap)
}

func TestApplyDiffUpdatesStateAndReturnsPreImage(t *testing.T) {
	loader := &fakeLoader{files: map[string]map[string]string{"r": {"a.txt": "line1\nline2\n"}}}
	c := New(loader)

	d := types.FileDiff{Kind: types.DiffFullContent, Content: "line1\nline2 changed\n"}
	pre, result, err := c.ApplyDiff("r", "a.txt", d)
	require.NoError(t, err)
	require.Equal(t, "line1\nline2\n", pre)
	require.Equal(t, "line1\nline2 changed\n", result)

	content, ok, err := c.Get("r", "a.txt")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "line1\nline2 changed\n", content)
}

func TestDeleteRemovesPath(t *testing.T) {
	loader := &fakeLoader{files: map[string]map[string]string{"r": {"a.txt": "x"}}}
	c := New(loader)

	require.NoError(t, c.Delete("r", "a.txt"))
	_, ok, err := c.Get("r", "a.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvictForcesRehydrate(t *testing.T) {
	loader := &fakeLoader{files: map[string]map[string]string{"r": {"a.txt": "x"}}}
	c := New(loader)

	_, _, err := c.Get("r", "a.txt")
	require.NoError(t, err)
	require.Equal(t, 1, loader.calls)

	c.Evict("r")
	_, _, err = c.Get("r", "a.txt")
	require.NoError(t, err)
	require.Equal(t, 2, loader.calls)
}
