package reconciler

import (
	"fmt"
	"sync"
	"time"

	"github.com/mothershiphq/mothership/pkg/checkpoint"
	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/rs/zerolog"
)

const tickInterval = 10 * time.Second

// Reconciler periodically auto-checkpoints every active rift whose
// project has auto-checkpointing enabled, and trims each rift's
// auto-generated checkpoints down to its project's retention cap.
type Reconciler struct {
	db          storage.Store
	checkpoints *checkpoint.Engine

	logger zerolog.Logger
	mu     sync.RWMutex
	stopCh chan struct{}

	// lastAuto tracks, per rift, when this process last auto-checkpointed
	// it, since types.Rift itself doesn't persist that timestamp.
	lastAuto map[string]time.Time
}

// New creates a Reconciler.
func New(db storage.Store, checkpoints *checkpoint.Engine) *Reconciler {
	return &Reconciler{
		db:          db,
		checkpoints: checkpoints,
		logger:      log.WithComponent("reconciler"),
		stopCh:      make(chan struct{}),
		lastAuto:    make(map[string]time.Time),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

// run is the main reconciliation loop
func (r *Reconciler) run() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	r.logger.Info().Msg("Reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(); err != nil {
				// Log error but continue
				r.logger.Error().Err(err).Msg("Reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("Reconciler stopped")
			return
		}
	}
}

// reconcile performs one reconciliation cycle
func (r *Reconciler) reconcile() error {
	// Start timing the reconciliation cycle
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Reconcile projects: auto-checkpoint due rifts, then trim
	if err := r.reconcileProjects(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to reconcile projects")
	}

	return nil
}

// reconcileProjects walks every project's active rifts, creating an
// auto-checkpoint for any rift whose AutoCheckpointInterval has
// elapsed since this process last checkpointed it, then enforces the
// project's retention cap on that rift's auto checkpoints.
func (r *Reconciler) reconcileProjects() error {
	projects, err := r.db.ListProjects()
	if err != nil {
		return fmt.Errorf("failed to list projects: %w", err)
	}

	var active, inactive int
	now := time.Now()

	for _, project := range projects {
		rifts, err := r.db.ListRiftsByProject(project.ID)
		if err != nil {
			r.logger.Error().Err(err).Str("project_id", project.ID).Msg("Failed to list rifts for project")
			continue
		}

		for _, rift := range rifts {
			if rift.Active {
				active++
			} else {
				inactive++
			}
			if !rift.Active {
				continue
			}
			r.reconcileRift(project, rift, now)
		}
	}

	metrics.ProjectsTotal.Set(float64(len(projects)))
	metrics.RiftsTotal.WithLabelValues("true").Set(float64(active))
	metrics.RiftsTotal.WithLabelValues("false").Set(float64(inactive))
	return nil
}

func (r *Reconciler) reconcileRift(project *types.Project, rift *types.Rift, now time.Time) {
	if project.Settings.AutoCheckpointInterval <= 0 {
		return
	}

	if last, ok := r.lastAuto[rift.ID]; ok && now.Sub(last) < project.Settings.AutoCheckpointInterval {
		return
	}

	if _, err := r.checkpoints.CreateCheckpoint(rift.ID, "system", "", true); err != nil {
		r.logger.Error().
			Err(err).
			Str("rift_id", rift.ID).
			Msg("Failed to create auto-checkpoint")
		return
	}
	r.lastAuto[rift.ID] = now

	r.logger.Debug().
		Str("rift_id", rift.ID).
		Str("project_id", project.ID).
		Msg("Auto-checkpoint created")

	trimmed, err := r.trimmedCount(rift.ID)
	if err != nil {
		r.logger.Error().Err(err).Str("rift_id", rift.ID).Msg("Failed to count checkpoints before retention trim")
	}

	if err := r.checkpoints.EnforceRetention(rift.ID, project.Settings.RetentionCap); err != nil {
		r.logger.Error().Err(err).Str("rift_id", rift.ID).Msg("Failed to enforce retention cap")
		return
	}

	if after, err := r.trimmedCount(rift.ID); err == nil && trimmed > after {
		metrics.RetentionTrimmedTotal.Add(float64(trimmed - after))
	}
}

func (r *Reconciler) trimmedCount(riftID string) (int, error) {
	list, err := r.checkpoints.ListCheckpoints(riftID)
	if err != nil {
		return 0, err
	}
	return len(list), nil
}
