package txn

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/store"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/syncerr"
	"github.com/mothershiphq/mothership/pkg/types"
)

// LiveState is the subset of pkg/livestate.Cache a Manager needs to
// read and write per-rift file content.
type LiveState interface {
	Get(riftID, path string) (string, bool, error)
	Set(riftID, path, content string) error
	Delete(riftID, path string) error
	ApplyDiff(riftID, path string, d types.FileDiff) (preImage string, result string, err error)
}

const defaultIdleTimeout = 2 * time.Minute

// pendingState tracks the in-memory bookkeeping a persisted
// types.Transaction doesn't carry: pre-images for rollback and the
// auto-rollback timer.
type pendingState struct {
	preimages map[string]string // path -> content before this transaction touched it
	hadPre    map[string]bool   // path -> whether a pre-image existed at all (vs. new file)
	timer     *time.Timer
}

// Manager implements transaction lifecycle.
type Manager struct {
	objects     *store.Store
	db          storage.Store
	live        LiveState
	idleTimeout time.Duration

	mu      sync.Mutex
	pending map[string]*pendingState
}

// New creates a Manager. idleTimeout <= 0 uses defaultIdleTimeout.
func New(objects *store.Store, db storage.Store, live LiveState, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleTimeout
	}
	return &Manager{
		objects:     objects,
		db:          db,
		live:        live,
		idleTimeout: idleTimeout,
		pending:     make(map[string]*pendingState),
	}
}

// Begin opens a new transaction and arms its auto-rollback timer.
func (m *Manager) Begin(id, riftID, author, description string, prerequisite []string) (*types.Transaction, error) {
	t := &types.Transaction{
		ID:           id,
		RiftID:       riftID,
		Author:       author,
		Description:  description,
		Status:       types.TxnActive,
		Pending:      make(map[string]*types.FileDiff),
		Prerequisite: prerequisite,
		CreatedAt:    time.Now(),
	}
	if err := m.db.CreateTransaction(t); err != nil {
		return nil, fmt.Errorf("failed to persist transaction %s: %w", id, err)
	}

	m.mu.Lock()
	m.pending[id] = &pendingState{
		preimages: make(map[string]string),
		hadPre:    make(map[string]bool),
		timer:     time.AfterFunc(m.idleTimeout, func() { m.autoRollback(id) }),
	}
	m.mu.Unlock()

	metrics.TransactionsActive.Inc()
	return t, nil
}

func (m *Manager) addOperation(txnID, path string, d types.FileDiff) error {
	t, err := m.db.GetTransaction(txnID)
	if err != nil {
		return fmt.Errorf("%w: transaction %s", syncerr.ErrTransactionNotFound, txnID)
	}
	if t.Status != types.TxnActive && t.Status != types.TxnPending {
		return fmt.Errorf("transaction %s is %s, cannot add operations", txnID, t.Status)
	}

	m.mu.Lock()
	ps, ok := m.pending[txnID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: transaction %s has no active bookkeeping", syncerr.ErrTransactionNotFound, txnID)
	}

	content, existed, err := m.live.Get(t.RiftID, path)
	if err != nil {
		return fmt.Errorf("failed to read live state for %s: %w", path, err)
	}

	m.mu.Lock()
	ps.preimages[path] = content
	ps.hadPre[path] = existed
	ps.timer.Reset(m.idleTimeout)
	m.mu.Unlock()

	t.Pending[path] = &d
	t.Status = types.TxnPending
	return m.db.UpdateTransaction(t)
}

// AddFileModification declares a line-diff edit to an existing file.
func (m *Manager) AddFileModification(txnID, path string, d types.FileDiff) error {
	return m.addOperation(txnID, path, d)
}

// AddFileCreation declares a brand-new file's full content.
func (m *Manager) AddFileCreation(txnID, path, content string) error {
	return m.addOperation(txnID, path, types.FileDiff{Kind: types.DiffFullContent, Content: content})
}

// AddFileDeletion declares the removal of path.
func (m *Manager) AddFileDeletion(txnID, path string) error {
	return m.addOperation(txnID, path, types.FileDiff{Kind: types.DiffDeleted})
}

// Commit validates every declared prerequisite transaction is already
// committed, then applies this transaction's operations in
// deterministic path order. The first failing operation stops the
// commit and rolls back every operation already applied this call.
func (m *Manager) Commit(txnID string) (*types.Transaction, error) {
	t, err := m.db.GetTransaction(txnID)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s", syncerr.ErrTransactionNotFound, txnID)
	}

	timer := metrics.NewTimer()

	for _, depID := range t.Prerequisite {
		dep, err := m.db.GetTransaction(depID)
		if err != nil || dep.Status != types.TxnCommitted {
			m.finalize(t, types.TxnRolledBack)
			timer.ObserveDurationVec(metrics.TransactionDuration, "rolled-back")
			return nil, fmt.Errorf("%w: %s", syncerr.ErrDependencyMissing, depID)
		}
	}

	paths := make([]string, 0, len(t.Pending))
	for path := range t.Pending {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	applied := make([]string, 0, len(paths))
	for _, path := range paths {
		d := t.Pending[path]
		if err := m.applyOne(t.RiftID, path, *d); err != nil {
			m.rollbackApplied(t, applied)
			m.finalize(t, types.TxnRolledBack)
			timer.ObserveDurationVec(metrics.TransactionDuration, "rolled-back")
			return nil, fmt.Errorf("failed to apply %s: %w", path, err)
		}
		applied = append(applied, path)
	}

	m.finalize(t, types.TxnCommitted)
	timer.ObserveDurationVec(metrics.TransactionDuration, "committed")
	return t, nil
}

func (m *Manager) applyOne(riftID, path string, d types.FileDiff) error {
	if d.Kind == types.DiffDeleted {
		return m.live.Delete(riftID, path)
	}

	_, result, err := m.live.ApplyDiff(riftID, path, d)
	if err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrDiffApply, err)
	}
	if _, err := m.objects.Put([]byte(result)); err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrObjectStoreIO, err)
	}
	return nil
}

// Rollback explicitly aborts an active or pending transaction,
// restoring every pre-image captured since Begin.
func (m *Manager) Rollback(txnID string) (*types.Transaction, error) {
	t, err := m.db.GetTransaction(txnID)
	if err != nil {
		return nil, fmt.Errorf("%w: transaction %s", syncerr.ErrTransactionNotFound, txnID)
	}

	m.mu.Lock()
	ps, ok := m.pending[txnID]
	m.mu.Unlock()
	if ok {
		for path, content := range ps.preimages {
			if ps.hadPre[path] {
				_ = m.live.Set(t.RiftID, path, content)
			}
		}
	}

	m.finalize(t, types.TxnRolledBack)
	return t, nil
}

// rollbackApplied restores pre-images for paths already written
// during a failed Commit, in reverse application order.
func (m *Manager) rollbackApplied(t *types.Transaction, applied []string) {
	m.mu.Lock()
	ps, ok := m.pending[t.ID]
	m.mu.Unlock()
	if !ok {
		return
	}

	for i := len(applied) - 1; i >= 0; i-- {
		path := applied[i]
		if ps.hadPre[path] {
			_ = m.live.Set(t.RiftID, path, ps.preimages[path])
		} else {
			_ = m.live.Delete(t.RiftID, path)
		}
	}
}

func (m *Manager) autoRollback(txnID string) {
	log.WithComponent("txn").Warn().Str("transaction_id", txnID).Msg("transaction idle timeout, auto-rolling back")
	if _, err := m.Rollback(txnID); err != nil {
		log.WithComponent("txn").Error().Err(err).Str("transaction_id", txnID).Msg("auto-rollback failed")
	}
}

// finalize persists the terminal status and releases in-memory
// bookkeeping for txnID.
func (m *Manager) finalize(t *types.Transaction, status types.TransactionStatus) {
	t.Status = status
	if status == types.TxnCommitted {
		t.CommittedAt = time.Now()
	}
	if err := m.db.UpdateTransaction(t); err != nil {
		log.WithComponent("txn").Error().Err(err).Str("transaction_id", t.ID).Msg("failed to persist final transaction status")
	}

	m.mu.Lock()
	if ps, ok := m.pending[t.ID]; ok {
		ps.timer.Stop()
		delete(m.pending, t.ID)
	}
	m.mu.Unlock()

	metrics.TransactionsActive.Dec()
}
