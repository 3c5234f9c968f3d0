package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Rift and project metrics
	ProjectsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_projects_total",
			Help: "Total number of tracked projects",
		},
	)

	RiftsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mothership_rifts_total",
			Help: "Total number of rifts by active status",
		},
		[]string{"active"},
	)

	CheckpointsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mothership_checkpoints_total",
			Help: "Total number of checkpoints created, by auto/manual",
		},
		[]string{"auto"},
	)

	// Bus metrics
	BusActiveTopics = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_bus_active_rifts",
			Help: "Number of rifts with at least one subscribed session",
		},
	)

	BusSubscribersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_bus_subscribers_total",
			Help: "Total number of sessions subscribed across all rifts",
		},
	)

	// Conflict and transaction metrics
	ConflictsDetectedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mothership_conflicts_detected_total",
			Help: "Total number of sync conflicts detected",
		},
	)

	ConflictRiftsCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mothership_conflict_rifts_created_total",
			Help: "Total number of conflict rifts auto-created",
		},
	)

	TransactionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mothership_transaction_duration_seconds",
			Help:    "Time spent in CommitTransaction, by outcome (committed or rolled-back), in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	TransactionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_transactions_active",
			Help: "Number of transactions currently in the active or pending state",
		},
	)

	// Raft (checkpoint-index replication) metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_raft_is_leader",
			Help: "Whether this replica is the Raft leader for the checkpoint index (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_raft_peers_total",
			Help: "Total number of Raft peers replicating the checkpoint index",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mothership_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// API and WebSocket metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mothership_api_requests_total",
			Help: "Total number of HTTP API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mothership_api_request_duration_seconds",
			Help:    "HTTP API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	WSSessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mothership_ws_sessions_active",
			Help: "Number of currently connected WebSocket sessions",
		},
	)

	WSMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mothership_ws_messages_total",
			Help: "Total WebSocket messages by direction and type",
		},
		[]string{"direction", "type"},
	)

	// Diff engine metrics
	DiffComputeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mothership_diff_compute_duration_seconds",
			Help:    "Time taken to compute a file diff in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Auto-checkpoint reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mothership_reconciliation_duration_seconds",
			Help:    "Time taken for one auto-checkpoint reconciliation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mothership_reconciliation_cycles_total",
			Help: "Total number of auto-checkpoint reconciliation passes completed",
		},
	)

	RetentionTrimmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mothership_retention_trimmed_checkpoints_total",
			Help: "Total number of auto checkpoints trimmed by a project's retention cap",
		},
	)

	// Client agent metrics (registered here alongside the server's; the
	// agent serves no metrics endpoint of its own and does not update them)
	AgentFileEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mothership_agent_file_events_total",
			Help: "Total filesystem events observed by the agent watcher, by kind",
		},
		[]string{"kind"},
	)

	AgentReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mothership_agent_reconnects_total",
			Help: "Total number of times the agent's WebSocket connection was re-established",
		},
	)
)

func init() {
	prometheus.MustRegister(
		ProjectsTotal,
		RiftsTotal,
		CheckpointsTotal,
		BusActiveTopics,
		BusSubscribersTotal,
		ConflictsDetectedTotal,
		ConflictRiftsCreatedTotal,
		TransactionDuration,
		TransactionsActive,
		RaftLeader,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		RaftApplyDuration,
		APIRequestsTotal,
		APIRequestDuration,
		WSSessionsActive,
		WSMessagesTotal,
		DiffComputeDuration,
		ReconciliationDuration,
		ReconciliationCyclesTotal,
		RetentionTrimmedTotal,
		AgentFileEventsTotal,
		AgentReconnectsTotal,
	)
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for histogram observations.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
