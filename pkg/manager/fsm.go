package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/hashicorp/raft"
)

// FSM applies replicated operations against the metadata store. Every
// server replica runs one; only the leader's Apply calls originate
// from local requests, but every replica's FSM ends up in the same
// state once the log is replayed.
type FSM struct {
	mu    sync.RWMutex
	store storage.Store
}

// NewFSM creates an FSM backed by store.
func NewFSM(store storage.Store) *FSM {
	return &FSM{store: store}
}

// Command is one entry in the raft log: an operation name plus its
// JSON-encoded argument.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opCreateProject    = "create_project"
	opUpdateProject    = "update_project"
	opDeleteProject    = "delete_project"
	opCreateRift       = "create_rift"
	opUpdateRift       = "update_rift"
	opDeleteRift       = "delete_rift"
	opCreateCheckpoint = "create_checkpoint"
	opDeleteCheckpoint = "delete_checkpoint"
)

// deleteCheckpointArgs is the argument shape for opDeleteCheckpoint,
// which needs both IDs to find the rift's checkpoint index entry.
type deleteCheckpointArgs struct {
	ID     string `json:"id"`
	RiftID string `json:"rift_id"`
}

// Apply applies one committed raft log entry to the metadata store.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opCreateProject:
		var p types.Project
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.CreateProject(&p)

	case opUpdateProject:
		var p types.Project
		if err := json.Unmarshal(cmd.Data, &p); err != nil {
			return err
		}
		return f.store.UpdateProject(&p)

	case opDeleteProject:
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteProject(id)

	case opCreateRift:
		var r types.Rift
		if err := json.Unmarshal(cmd.Data, &r); err != nil {
			return err
		}
		return f.store.CreateRift(&r)

	case opUpdateRift:
		var r types.Rift
		if err := json.Unmarshal(cmd.Data, &r); err != nil {
			return err
		}
		return f.store.UpdateRift(&r)

	case opDeleteRift:
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return f.store.DeleteRift(id)

	case opCreateCheckpoint:
		var cp types.Checkpoint
		if err := json.Unmarshal(cmd.Data, &cp); err != nil {
			return err
		}
		return f.store.CreateCheckpoint(&cp)

	case opDeleteCheckpoint:
		var args deleteCheckpointArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		return f.store.DeleteCheckpoint(args.ID, args.RiftID)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// Snapshot captures the full metadata store for raft log compaction.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	projects, err := f.store.ListProjects()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var rifts []*types.Rift
	var checkpoints []*types.Checkpoint
	for _, p := range projects {
		rs, err := f.store.ListRiftsByProject(p.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list rifts for project %s: %w", p.ID, err)
		}
		rifts = append(rifts, rs...)
		for _, r := range rs {
			cps, err := f.store.ListCheckpointsByRift(r.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to list checkpoints for rift %s: %w", r.ID, err)
			}
			checkpoints = append(checkpoints, cps...)
		}
	}

	return &Snapshot{Projects: projects, Rifts: rifts, Checkpoints: checkpoints}, nil
}

// Restore replaces the metadata store's content with a snapshot's.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap Snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, p := range snap.Projects {
		if err := f.store.CreateProject(p); err != nil {
			return fmt.Errorf("failed to restore project: %w", err)
		}
	}
	for _, r := range snap.Rifts {
		if err := f.store.CreateRift(r); err != nil {
			return fmt.Errorf("failed to restore rift: %w", err)
		}
	}
	for _, cp := range snap.Checkpoints {
		if err := f.store.CreateCheckpoint(cp); err != nil {
			return fmt.Errorf("failed to restore checkpoint: %w", err)
		}
	}
	return nil
}

// Snapshot is a point-in-time copy of every replicated metadata
// record.
type Snapshot struct {
	Projects    []*types.Project
	Rifts       []*types.Rift
	Checkpoints []*types.Checkpoint
}

// Persist writes the snapshot to sink as JSON.
func (s *Snapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

// Release is a no-op; the snapshot holds no external resources.
func (s *Snapshot) Release() {}
