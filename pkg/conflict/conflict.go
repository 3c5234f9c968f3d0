package conflict

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mothershiphq/mothership/pkg/diff"
	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/types"
)

// LiveState is the subset of pkg/livestate.Cache a Detector needs.
type LiveState interface {
	ApplyDiff(riftID, path string, d types.FileDiff) (preImage string, result string, err error)
	Set(riftID, path, content string) error
}

// Detector checks incoming diffs against live state and, on a
// mismatch, materializes a conflict rift.
type Detector struct {
	db   storage.Store
	live LiveState
}

// New creates a Detector.
func New(db storage.Store, live LiveState) *Detector {
	return &Detector{db: db, live: live}
}

// Result describes the outcome of handling one FileDiffChanged.
type Result struct {
	Conflict        bool
	ServerContent   string
	ServerTimestamp time.Time
	NewContent      string // set only when Conflict is false
	ConflictRift    *types.Rift
}

// Handle applies fd to rift's live state at path. On success it
// returns Conflict=false with the resulting content. On a pre-image
// mismatch it leaves rift's live state untouched, creates a conflict
// rift scoped to sender, and returns Conflict=true.
func (d *Detector) Handle(project *types.Project, rift *types.Rift, path string, fd types.FileDiff, sender *types.User) (*Result, error) {
	preImage, result, err := d.live.ApplyDiff(rift.ID, path, fd)
	if err == nil {
		return &Result{Conflict: false, NewContent: result}, nil
	}
	if !errors.Is(err, diff.ErrMismatchedDiff) {
		return nil, fmt.Errorf("failed to apply diff for %s: %w", path, err)
	}

	metrics.ConflictsDetectedTotal.Inc()
	now := time.Now()
	intended := reconstructIntent(preImage, fd)

	conflictRift, err := d.createConflictRift(project, rift, sender, path, intended)
	if err != nil {
		return nil, fmt.Errorf("failed to create conflict rift: %w", err)
	}
	metrics.ConflictRiftsCreatedTotal.Inc()

	log.WithRift(rift.ID).Warn().
		Str("path", path).
		Str("user", sender.Username).
		Str("conflict_rift_id", conflictRift.ID).
		Msg("conflict detected, isolated to new rift")

	return &Result{
		Conflict:        true,
		ServerContent:   preImage,
		ServerTimestamp: now,
		ConflictRift:    conflictRift,
	}, nil
}

func (d *Detector) createConflictRift(project *types.Project, original *types.Rift, sender *types.User, path, content string) (*types.Rift, error) {
	name := fmt.Sprintf("conflict-%s-%d", sender.Username, time.Now().Unix())
	r := &types.Rift{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		ParentRiftID:  original.ID,
		Name:          name,
		Collaborators: []string{sender.ID},
		Active:        true,
		CreatedAt:     time.Now(),
	}
	if err := d.db.CreateRift(r); err != nil {
		return nil, err
	}
	if err := d.live.Set(r.ID, path, content); err != nil {
		return nil, err
	}
	return r, nil
}

// reconstructIntent replays fd the way pkg/diff.Apply does, except
// Keep/Delete counts are clamped to serverContent's own line count
// instead of failing, since the whole point of calling this is that
// fd's true pre-image no longer matches anything the server has.
func reconstructIntent(serverContent string, fd types.FileDiff) string {
	if fd.Kind == types.DiffFullContent {
		return fd.Content
	}
	if fd.Kind != types.DiffLine {
		return serverContent
	}

	origLines := strings.Split(serverContent, "\n")
	var out []string
	cursor := 0
	clamp := func(n int) int {
		if cursor+n > len(origLines) {
			return len(origLines) - cursor
		}
		return n
	}

	for _, op := range fd.Ops {
		switch op.Kind {
		case types.OpKeep:
			n := clamp(op.N)
			out = append(out, origLines[cursor:cursor+n]...)
			cursor += n
		case types.OpDelete:
			cursor += clamp(op.N)
		case types.OpInsert:
			out = append(out, op.Lines...)
		case types.OpReplace:
			cursor += clamp(op.N)
			out = append(out, op.Lines...)
		}
	}
	return strings.Join(out, "\n")
}
