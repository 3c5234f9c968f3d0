package crdt

import (
	"testing"

	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestBetweenFindsMidpoint(t *testing.T) {
	require.Equal(t, []int{0}, Between(nil, nil))
	require.Equal(t, []int{2}, Between([]int{1}, []int{3}))
	require.Equal(t, []int{1}, Between([]int{1}, []int{2}))
	require.Equal(t, []int{5}, Between([]int{4}, nil))
}

func TestApplyAssignsIncreasingClock(t *testing.T) {
	log := NewLog("site-a")

	op1 := log.Apply(types.DirCreateFile, "a.go", "", []int{1})
	op2 := log.Apply(types.DirCreateFile, "b.go", "", []int{2})

	require.Equal(t, uint64(1), op1.ID.Clock)
	require.Equal(t, uint64(2), op2.ID.Clock)
	require.Equal(t, "site-a", op1.ID.Site)
}

func TestStateSkipsTombstonedEntries(t *testing.T) {
	log := NewLog("site-a")
	op := log.Apply(types.DirCreateFile, "a.go", "", []int{1})
	log.Apply(types.DirCreateFile, "b.go", "", []int{2})
	log.Delete(op.ID)

	state := log.State()
	require.Len(t, state, 1)
	require.Equal(t, "b.go", state[0].Name)
}

func TestStateOrdersByPositionThenClock(t *testing.T) {
	log := NewLog("site-a")
	log.Apply(types.DirCreateFile, "z.go", "", []int{5})
	log.Apply(types.DirCreateFile, "a.go", "", []int{1})
	log.Apply(types.DirCreateFile, "m.go", "", []int{3})

	state := log.State()
	require.Equal(t, []string{"a.go", "m.go", "z.go"}, []string{state[0].Name, state[1].Name, state[2].Name})
}

func TestMergeUnionsOpsAndTombstonesAndAdvancesClock(t *testing.T) {
	a := NewLog("site-a")
	a.Apply(types.DirCreateFile, "a.go", "", []int{1})

	b := NewLog("site-b")
	opB := b.Apply(types.DirCreateFile, "b.go", "", []int{2})
	b.Apply(types.DirCreateFile, "c.go", "", []int{3})
	b.Delete(opB.ID)

	ops, tombstones := b.Snapshot()
	a.Merge(ops, tombstones)

	state := a.State()
	names := make(map[string]bool)
	for _, op := range state {
		names[op.Name] = true
	}
	require.True(t, names["a.go"])
	require.True(t, names["c.go"])
	require.False(t, names["b.go"], "b.go was tombstoned by site-b")

	// a's own next op must get a clock past both peers' highest clock.
	opAfterMerge := a.Apply(types.DirCreateFile, "d.go", "", []int{4})
	require.Greater(t, opAfterMerge.ID.Clock, uint64(3))
}

func TestMergeIsIdempotent(t *testing.T) {
	a := NewLog("site-a")
	a.Apply(types.DirCreateFile, "a.go", "", []int{1})

	b := NewLog("site-b")
	b.Apply(types.DirCreateFile, "b.go", "", []int{2})

	ops, tombstones := b.Snapshot()
	a.Merge(ops, tombstones)
	beforeLen := len(a.State())

	a.Merge(ops, tombstones)
	require.Len(t, a.State(), beforeLen, "re-merging the same peer snapshot must not duplicate entries")
}
