package metrics

import (
	"time"
)

// RaftStatSource exposes the subset of replica state the collector
// needs. Implemented by pkg/manager.Manager; kept as an interface here
// so metrics never imports manager (which imports metrics).
type RaftStatSource interface {
	IsLeader() bool
	RaftStats() map[string]interface{}
}

// StoreStatSource exposes the entity counts the collector scrapes.
// Implemented by *pkg/storage.BoltStore through its ProjectCount and
// RiftCounts helpers (the storage.Store interface does not include them).
type StoreStatSource interface {
	ProjectCount() (int, error)
	RiftCounts() (active, inactive int, err error)
}

// BusStatSource exposes rift fan-out bus gauges. Implemented by
// pkg/bus.Bus.
type BusStatSource interface {
	ActiveTopics() int
}

// Collector periodically samples application state into the
// registered Prometheus gauges. Counters (checkpoints, conflicts,
// transactions) are incremented directly at the call site instead,
// since a poll can't observe an event that already happened.
type Collector struct {
	raft   RaftStatSource
	store  StoreStatSource
	bus    BusStatSource
	stopCh chan struct{}
}

// NewCollector creates a Collector. Any source may be nil, in which
// case its metrics are simply left unset.
func NewCollector(raft RaftStatSource, store StoreStatSource, bus BusStatSource) *Collector {
	return &Collector{raft: raft, store: store, bus: bus, stopCh: make(chan struct{})}
}

// Start begins sampling on a 15s interval, collecting once immediately.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts the sampling loop.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectStoreMetrics()
	c.collectBusMetrics()
	c.collectRaftMetrics()
}

func (c *Collector) collectStoreMetrics() {
	if c.store == nil {
		return
	}
	if n, err := c.store.ProjectCount(); err == nil {
		ProjectsTotal.Set(float64(n))
	}
	if active, inactive, err := c.store.RiftCounts(); err == nil {
		RiftsTotal.WithLabelValues("true").Set(float64(active))
		RiftsTotal.WithLabelValues("false").Set(float64(inactive))
	}
}

func (c *Collector) collectBusMetrics() {
	if c.bus == nil {
		return
	}
	BusActiveTopics.Set(float64(c.bus.ActiveTopics()))
}

func (c *Collector) collectRaftMetrics() {
	if c.raft == nil {
		return
	}
	if c.raft.IsLeader() {
		RaftLeader.Set(1)
	} else {
		RaftLeader.Set(0)
	}

	stats := c.raft.RaftStats()
	if stats == nil {
		return
	}
	if v, ok := stats["last_log_index"].(uint64); ok {
		RaftLogIndex.Set(float64(v))
	}
	if v, ok := stats["applied_index"].(uint64); ok {
		RaftAppliedIndex.Set(float64(v))
	}
	if v, ok := stats["num_peers"].(uint64); ok {
		RaftPeers.Set(float64(v) + 1) // +1 for self
	}
}
