package livestate

import (
	"fmt"
	"sync"

	"github.com/mothershiphq/mothership/pkg/diff"
	"github.com/mothershiphq/mothership/pkg/types"
)

// Loader fetches the files-at-latest-checkpoint snapshot for a rift.
// Implemented by the checkpoint engine; kept as an interface here to
// avoid a cyclic import between livestate and checkpoint.
type Loader interface {
	FilesAtLatestCheckpoint(riftID string) (map[string]string, error)
}

type riftState struct {
	mu    sync.RWMutex
	files map[string]string
}

// Cache holds the live file maps for every rift currently being
// synced, rehydrating each rift lazily from Loader on first touch.
type Cache struct {
	loader Loader

	mu    sync.Mutex
	rifts map[string]*riftState
}

// New creates a Cache backed by loader.
func New(loader Loader) *Cache {
	return &Cache{loader: loader, rifts: make(map[string]*riftState)}
}

func (c *Cache) stateFor(riftID string) (*riftState, error) {
	c.mu.Lock()
	rs, ok := c.rifts[riftID]
	if ok {
		c.mu.Unlock()
		return rs, nil
	}
	c.mu.Unlock()

	files, err := c.loader.FilesAtLatestCheckpoint(riftID)
	if err != nil {
		return nil, fmt.Errorf("failed to rehydrate live state for rift %s: %w", riftID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if rs, ok := c.rifts[riftID]; ok {
		return rs, nil // another goroutine rehydrated first
	}
	rs = &riftState{files: files}
	c.rifts[riftID] = rs
	return rs, nil
}

// Get returns the current content of path in riftID, and whether it
// exists.
func (c *Cache) Get(riftID, path string) (string, bool, error) {
	rs, err := c.stateFor(riftID)
	if err != nil {
		return "", false, err
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	content, ok := rs.files[path]
	return content, ok, nil
}

// Snapshot returns a copy of every path and its content in riftID, for
// handing a newly joined collaborator a full sync.
func (c *Cache) Snapshot(riftID string) (map[string]string, error) {
	rs, err := c.stateFor(riftID)
	if err != nil {
		return nil, err
	}
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make(map[string]string, len(rs.files))
	for k, v := range rs.files {
		out[k] = v
	}
	return out, nil
}

// Set overwrites path's content directly, used when a full-content
// change or creation arrives.
func (c *Cache) Set(riftID, path, content string) error {
	rs, err := c.stateFor(riftID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.files[path] = content
	return nil
}

// Delete removes path from riftID's live state.
func (c *Cache) Delete(riftID, path string) error {
	rs, err := c.stateFor(riftID)
	if err != nil {
		return err
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	delete(rs.files, path)
	return nil
}

// ApplyDiff applies d against path's current pre-image and stores the
// result, returning the pre-image content it diffed against so callers
// can detect a stale-base conflict.
func (c *Cache) ApplyDiff(riftID, path string, d types.FileDiff) (preImage string, result string, err error) {
	rs, err := c.stateFor(riftID)
	if err != nil {
		return "", "", err
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	preImage = rs.files[path]
	result, err = diff.Apply(preImage, d)
	if err != nil {
		return preImage, "", err
	}
	rs.files[path] = result
	return preImage, result, nil
}

// Evict drops a rift's cached state, used once its bus topic empties.
func (c *Cache) Evict(riftID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rifts, riftID)
}
