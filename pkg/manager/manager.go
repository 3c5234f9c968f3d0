package manager

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Manager replicates project, rift, and checkpoint metadata across
// server replicas via raft, so a replica can take over immediately if
// the leader goes down. Object content in pkg/store needs no such
// replication: content-addressed blobs are trivial to shard or mirror
// independently.
type Manager struct {
	replicaID string
	bindAddr  string
	dataDir   string

	raft         *raft.Raft
	fsm          *FSM
	store        storage.Store
	tokenManager *TokenManager
}

// Config configures a Manager.
type Config struct {
	ReplicaID string
	BindAddr  string
	DataDir   string
	Store     storage.Store
}

// New creates a Manager. Bootstrap or Join must be called once before
// Apply will succeed.
func New(cfg Config) (*Manager, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fsm := NewFSM(cfg.Store)

	return &Manager{
		replicaID:    cfg.ReplicaID,
		bindAddr:     cfg.BindAddr,
		dataDir:      cfg.DataDir,
		fsm:          fsm,
		store:        cfg.Store,
		tokenManager: NewTokenManager(),
	}, nil
}

func (m *Manager) newRaft() (*raft.Raft, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.replicaID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bind address: %w", err)
	}

	transport, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(m.dataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create raft log store: %w", err)
	}

	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("failed to create raft instance: %w", err)
	}
	return r, nil
}

// Bootstrap initializes a new single-replica cluster. Call this once,
// on the first replica that comes up.
func (m *Manager) Bootstrap() error {
	r, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(m.replicaID), Address: raft.ServerAddress(m.bindAddr)},
		},
	}
	future := m.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to bootstrap replica cluster: %w", err)
	}

	log.Logger.Info().Str("replica_id", m.replicaID).Msg("bootstrapped single-replica cluster")
	return nil
}

// Join starts this replica's raft instance so it can be added as a
// voter by the leader. The leader's Manager.AddVoter must be called for
// this replica separately; no HTTP endpoint in pkg/httpapi exposes it.
func (m *Manager) Join() error {
	r, err := m.newRaft()
	if err != nil {
		return err
	}
	m.raft = r
	log.Logger.Info().Str("replica_id", m.replicaID).Msg("replica ready to join cluster")
	return nil
}

// AddVoter adds a new replica to the cluster. Must be called on the
// current leader.
func (m *Manager) AddVoter(replicaID, addr string) error {
	if !m.IsLeader() {
		return fmt.Errorf("AddVoter called on non-leader replica")
	}
	future := m.raft.AddVoter(raft.ServerID(replicaID), raft.ServerAddress(addr), 0, 10*time.Second)
	return future.Error()
}

// IsLeader reports whether this replica currently holds raft
// leadership.
func (m *Manager) IsLeader() bool {
	return m.raft != nil && m.raft.State() == raft.Leader
}

// RaftStats exposes the subset of raft's own stats map used by
// pkg/metrics.Collector, matching metrics.RaftStatSource.
func (m *Manager) RaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}
	stats := m.raft.Stats()
	out := make(map[string]interface{}, len(stats))
	for k, v := range stats {
		out[k] = v
	}
	if lastIdx, err := parseUint(stats["last_log_index"]); err == nil {
		out["last_log_index"] = lastIdx
	}
	if appliedIdx, err := parseUint(stats["applied_index"]); err == nil {
		out["applied_index"] = appliedIdx
	}
	if numPeers, err := parseUint(stats["num_peers"]); err == nil {
		out["num_peers"] = numPeers
	}
	return out
}

func parseUint(s string) (uint64, error) {
	var v uint64
	_, err := fmt.Sscanf(s, "%d", &v)
	return v, err
}

// apply replicates cmd through raft and waits for it to commit,
// returning whatever the FSM's Apply returned for it.
func (m *Manager) apply(op string, data interface{}) error {
	if m.raft == nil {
		return fmt.Errorf("manager has not bootstrapped or joined a raft cluster")
	}
	if m.raft.State() != raft.Leader {
		return fmt.Errorf("this replica is not the raft leader")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal command payload: %w", err)
	}
	cmd := Command{Op: op, Data: payload}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(raw, 10*time.Second)
	if err := future.Error(); err != nil {
		return fmt.Errorf("failed to replicate %s: %w", op, err)
	}
	if result := future.Response(); result != nil {
		if err, ok := result.(error); ok {
			return fmt.Errorf("failed to apply %s: %w", op, err)
		}
	}
	return nil
}

// CreateProject replicates a new project across the cluster.
func (m *Manager) CreateProject(p *types.Project) error { return m.apply(opCreateProject, p) }

// UpdateProject replicates a project update.
func (m *Manager) UpdateProject(p *types.Project) error { return m.apply(opUpdateProject, p) }

// DeleteProject replicates a project deletion.
func (m *Manager) DeleteProject(id string) error { return m.apply(opDeleteProject, id) }

// CreateRift replicates a new rift.
func (m *Manager) CreateRift(r *types.Rift) error { return m.apply(opCreateRift, r) }

// UpdateRift replicates a rift update.
func (m *Manager) UpdateRift(r *types.Rift) error { return m.apply(opUpdateRift, r) }

// DeleteRift replicates a rift deletion.
func (m *Manager) DeleteRift(id string) error { return m.apply(opDeleteRift, id) }

// CreateCheckpoint replicates a new checkpoint.
func (m *Manager) CreateCheckpoint(cp *types.Checkpoint) error {
	return m.apply(opCreateCheckpoint, cp)
}

// DeleteCheckpoint replicates a checkpoint deletion (used by retention
// trimming).
func (m *Manager) DeleteCheckpoint(id, riftID string) error {
	return m.apply(opDeleteCheckpoint, deleteCheckpointArgs{ID: id, RiftID: riftID})
}

// Store returns the underlying metadata store for direct reads; reads
// don't need to go through raft since every replica's FSM state is
// caught up to its own applied index.
func (m *Manager) Store() storage.Store {
	return m.store
}

// GenerateJoinToken issues a token a candidate replica can present
// when asking to join.
func (m *Manager) GenerateJoinToken(ttl time.Duration) (*JoinToken, error) {
	return m.tokenManager.GenerateToken("voter", ttl)
}

// ValidateJoinToken checks a join token presented by a candidate
// replica.
func (m *Manager) ValidateJoinToken(token string) error {
	_, err := m.tokenManager.ValidateToken(token)
	return err
}

// Shutdown gracefully stops this replica's raft participation.
func (m *Manager) Shutdown() error {
	if m.raft == nil {
		return nil
	}
	return m.raft.Shutdown().Error()
}
