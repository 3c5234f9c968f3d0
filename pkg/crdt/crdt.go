package crdt

import (
	"sort"
	"sync"

	"github.com/mothershiphq/mothership/pkg/types"
)

// Log is one directory's operation log: a site-local view that can
// apply its own operations and merge in operations seen from peers.
type Log struct {
	siteID string

	mu         sync.RWMutex
	clock      uint64
	ops        map[types.DirOpID]types.DirOp
	tombstones map[types.DirOpID]bool
}

// NewLog creates an empty Log for siteID (typically the server's
// replica ID, or a client agent's machine ID for a locally-buffered
// directory move made before the server confirms it).
func NewLog(siteID string) *Log {
	return &Log{
		siteID:     siteID,
		ops:        make(map[types.DirOpID]types.DirOp),
		tombstones: make(map[types.DirOpID]bool),
	}
}

// nextID advances the local Lamport clock and returns the ID for a new
// locally-originated operation. Caller must hold mu.
func (l *Log) nextID() types.DirOpID {
	l.clock++
	return types.DirOpID{Clock: l.clock, Site: l.siteID}
}

// Apply records a locally-originated operation at position, returning
// the committed types.DirOp (with its assigned ID) so the caller can
// broadcast it.
func (l *Log) Apply(kind types.DirOpKind, name string, newName string, position []int) types.DirOp {
	l.mu.Lock()
	defer l.mu.Unlock()

	op := types.DirOp{
		ID:       l.nextID(),
		Position: position,
		Kind:     kind,
		Name:     name,
		NewName:  newName,
	}
	l.ops[op.ID] = op
	return op
}

// Delete tombstones the operation identified by id (e.g. marking a
// create_file dead after a delete_file targets the same name).
func (l *Log) Delete(id types.DirOpID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tombstones[id] = true
}

// Merge absorbs a peer's operations and tombstones, taking the union
// of both and advancing the local clock to one past the max of the
// two — mirroring RiftCRDT::merge.
func (l *Log) Merge(ops []types.DirOp, tombstones map[types.DirOpID]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var peerMax uint64
	for _, op := range ops {
		if op.ID.Clock > peerMax {
			peerMax = op.ID.Clock
		}
		if _, ok := l.ops[op.ID]; !ok {
			l.ops[op.ID] = op
		}
	}
	for id, deleted := range tombstones {
		l.tombstones[id] = l.tombstones[id] || deleted
	}

	if peerMax > l.clock {
		l.clock = peerMax
	}
	l.clock++
}

// Snapshot returns the full operation log and tombstone set, for
// sending to a peer to merge.
func (l *Log) Snapshot() ([]types.DirOp, map[types.DirOpID]bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ops := make([]types.DirOp, 0, len(l.ops))
	for _, op := range l.ops {
		ops = append(ops, op)
	}
	tombstones := make(map[types.DirOpID]bool, len(l.tombstones))
	for id, v := range l.tombstones {
		tombstones[id] = v
	}
	return ops, tombstones
}

// State returns every non-tombstoned operation as recorded, sorted in
// (position, lamport_clock) order. Rename and delete operations are
// returned as entries of their own; they are not folded into the
// entries they name.
func (l *Log) State() []types.DirOp {
	l.mu.RLock()
	entries := make([]types.DirOp, 0, len(l.ops))
	for id, op := range l.ops {
		if l.tombstones[id] {
			continue
		}
		entries = append(entries, op)
	}
	l.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if c := comparePosition(entries[i].Position, entries[j].Position); c != 0 {
			return c < 0
		}
		return entries[i].ID.Clock < entries[j].ID.Clock
	})
	return entries
}

// Between computes a position vector between left and right, the way
// LogicalPosition::between does: walk the shared prefix, and at the
// first differing component push their midpoint; if left is a prefix
// of right (or both are empty) push one past left's last component
// (or 0 for an empty left).
func Between(left, right []int) []int {
	i := 0
	path := make([]int, 0, len(left)+1)
	for i < len(left) && i < len(right) {
		if left[i] != right[i] {
			path = append(path, (left[i]+right[i])/2)
			break
		}
		path = append(path, left[i])
		i++
	}

	if len(path) == i {
		if i >= len(left) {
			path = append(path, 0)
		} else {
			path = append(path, left[i]+1)
		}
	}
	return path
}

func comparePosition(a, b []int) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}
