package checkpoint

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/store"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/syncerr"
	"github.com/mothershiphq/mothership/pkg/types"
)

// Writer is the subset of storage.Store (or manager.Manager, when raft
// replication is enabled) needed to persist a checkpoint. Both satisfy
// it structurally.
type Writer interface {
	CreateCheckpoint(cp *types.Checkpoint) error
	DeleteCheckpoint(id, riftID string) error
}

// RiftState supplies a rift's current live content, satisfied by
// *pkg/livestate.Cache without either package importing the other's
// concrete type.
type RiftState interface {
	Snapshot(riftID string) (map[string]string, error)
}

// Engine implements checkpoint contract.
type Engine struct {
	objects *store.Store
	writer  Writer
	reader  storage.Store
	live    RiftState

	mu    sync.RWMutex
	cache map[string]*types.Checkpoint
}

// New wires an Engine. writer handles the replicated metadata write
// path (a storage.Store in single-node mode, a *manager.Manager when
// raft is enabled); reader answers reads directly from local storage,
// bypassing consensus since every replica's FSM is caught up to its
// own applied index.
func New(objects *store.Store, writer Writer, reader storage.Store, live RiftState) *Engine {
	return &Engine{
		objects: objects,
		writer:  writer,
		reader:  reader,
		live:    live,
		cache:   make(map[string]*types.Checkpoint),
	}
}

// CreateCheckpoint snapshots riftID's current live state: every file's
// content becomes a blob, one FileChange per file is recorded, and the
// checkpoint metadata is persisted as a single object.
func (e *Engine) CreateCheckpoint(riftID, author, message string, auto bool) (*types.Checkpoint, error) {
	files, err := e.live.Snapshot(riftID)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot rift %s: %w", riftID, err)
	}

	changes := make([]types.FileChange, 0, len(files))
	for path, content := range files {
		hash, err := e.objects.Put([]byte(content))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", syncerr.ErrObjectStoreIO, err)
		}
		changes = append(changes, types.FileChange{
			Path:        path,
			Kind:        types.ChangeModified,
			ContentHash: hash,
			Size:        int64(len(content)),
		})
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })

	cp := &types.Checkpoint{
		ID:        uuid.NewString(),
		RiftID:    riftID,
		Author:    author,
		Message:   message,
		Auto:      auto,
		Changes:   changes,
		CreatedAt: time.Now(),
	}

	if err := e.writer.CreateCheckpoint(cp); err != nil {
		return nil, fmt.Errorf("failed to persist checkpoint: %w", err)
	}

	e.mu.Lock()
	e.cache[cp.ID] = cp
	e.mu.Unlock()

	metrics.CheckpointsTotal.WithLabelValues(strconv.FormatBool(auto)).Inc()
	return cp, nil
}

// LoadCheckpoint returns a checkpoint by ID, serving recently accessed
// ones from an in-memory cache.
func (e *Engine) LoadCheckpoint(id string) (*types.Checkpoint, error) {
	e.mu.RLock()
	if cp, ok := e.cache[id]; ok {
		e.mu.RUnlock()
		return cp, nil
	}
	e.mu.RUnlock()

	cp, err := e.reader.GetCheckpoint(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", syncerr.ErrObjectStoreIO, err)
	}

	e.mu.Lock()
	e.cache[id] = cp
	e.mu.Unlock()
	return cp, nil
}

// FilesAtCheckpoint resolves every content_hash in a checkpoint's
// changes through the object store, returning the full path->content
// map. Creating missing parent directories on disk is the caller's
// responsibility.
func (e *Engine) FilesAtCheckpoint(id string) (map[string]string, error) {
	cp, err := e.LoadCheckpoint(id)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(cp.Changes))
	for _, c := range cp.Changes {
		if c.Kind == types.ChangeDeleted {
			continue
		}
		data, err := e.objects.Get(c.ContentHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", syncerr.ErrObjectStoreIO, err)
		}
		out[c.Path] = string(data)
	}
	return out, nil
}

// ListCheckpoints returns every checkpoint recorded for riftID.
func (e *Engine) ListCheckpoints(riftID string) ([]*types.Checkpoint, error) {
	return e.reader.ListCheckpointsByRift(riftID)
}

// FilesAtLatestCheckpoint implements pkg/livestate.Loader: it resolves
// the most recently created checkpoint for riftID and materializes its
// files. An empty map (not an error) is returned for a rift with no
// checkpoints yet.
func (e *Engine) FilesAtLatestCheckpoint(riftID string) (map[string]string, error) {
	list, err := e.ListCheckpoints(riftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints for rift %s: %w", riftID, err)
	}
	if len(list) == 0 {
		return map[string]string{}, nil
	}

	latest := list[0]
	for _, cp := range list[1:] {
		if cp.CreatedAt.After(latest.CreatedAt) {
			latest = cp
		}
	}
	return e.FilesAtCheckpoint(latest.ID)
}

// EnforceRetention trims the oldest auto-generated checkpoints for
// riftID once the count exceeds retentionCap, per the project's
// retention_cap setting. A manually messaged checkpoint is never
// trimmed. retentionCap <= 0 means unlimited. Only checkpoint metadata
// is removed; object-store blobs are not garbage-collected.
func (e *Engine) EnforceRetention(riftID string, retentionCap int) error {
	if retentionCap <= 0 {
		return nil
	}

	list, err := e.ListCheckpoints(riftID)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints for rift %s: %w", riftID, err)
	}

	auto := make([]*types.Checkpoint, 0, len(list))
	for _, cp := range list {
		if cp.Auto {
			auto = append(auto, cp)
		}
	}
	if len(auto) <= retentionCap {
		return nil
	}

	sort.Slice(auto, func(i, j int) bool { return auto[i].CreatedAt.Before(auto[j].CreatedAt) })
	toTrim := auto[:len(auto)-retentionCap]

	for _, cp := range toTrim {
		if err := e.writer.DeleteCheckpoint(cp.ID, riftID); err != nil {
			return fmt.Errorf("failed to trim checkpoint %s: %w", cp.ID, err)
		}
		e.mu.Lock()
		delete(e.cache, cp.ID)
		e.mu.Unlock()
	}
	return nil
}
