package agent

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/mothershiphq/mothership/pkg/diff"
	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/protocol"
	"github.com/mothershiphq/mothership/pkg/types"
)

// serverWriteSuppressWindow bounds how long a path stays flagged as
// "just written by the server" if no corresponding watcher event
// arrives to clear it first.
const serverWriteSuppressWindow = 2 * time.Second

// Config describes one tracked project the agent syncs.
type Config struct {
	ProjectID      string
	RiftID         string
	Root           string
	ServerURL      string
	Token          string
	LastCheckpoint string
	IgnoreExtra    []string
}

// Agent runs the watcher/connection pair for a single project until
// its context is canceled.
type Agent struct {
	cfg  Config
	conn *Connection
	w    *Watcher

	mu            sync.Mutex
	lastContent   map[string]string
	serverWriting map[string]time.Time
}

// New wires a watcher and a connection together for cfg. The watcher
// is created (and starts walking cfg.Root) immediately; Run starts
// both event loops.
func New(cfg Config) (*Agent, error) {
	w, err := NewWatcher(cfg.Root, cfg.IgnoreExtra)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		cfg:           cfg,
		w:             w,
		lastContent:   make(map[string]string),
		serverWriting: make(map[string]time.Time),
	}
	a.conn = NewConnection(cfg.ServerURL, cfg.RiftID, cfg.Token, a.handleInbound)
	a.conn.SetLastCheckpoint(cfg.LastCheckpoint)
	return a, nil
}

// Run blocks, driving the watcher and connection until ctx is done.
func (a *Agent) Run(ctx context.Context) {
	logger := log.WithProject(a.cfg.ProjectID)
	logger.Info().Str("root", a.cfg.Root).Msg("agent starting")
	defer logger.Info().Msg("agent stopped")

	go a.w.Run()
	go a.conn.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			a.w.Close()
			return
		case ev, ok := <-a.w.Events():
			if !ok {
				return
			}
			a.handleFileEvent(ev)
		}
	}
}

// Health reports the underlying connection's counters.
func (a *Agent) Health() Health {
	return a.conn.Health()
}

func (a *Agent) handleFileEvent(ev FileEvent) {
	if a.isSuppressed(ev.RelPath) {
		return
	}

	content, err := os.ReadFile(ev.Path)
	if err != nil {
		return // file vanished between the event and the read
	}

	a.mu.Lock()
	previous, known := a.lastContent[ev.RelPath]
	a.lastContent[ev.RelPath] = string(content)
	a.mu.Unlock()

	if !known {
		env, err := encodeEnvelope(protocol.TypeFileChanged, protocol.FileChanged{
			RiftID:    a.cfg.RiftID,
			Path:      ev.RelPath,
			Content:   string(content),
			Timestamp: time.Now(),
		})
		if err != nil {
			log.WithComponent("agent").Warn().Err(err).Msg("failed to encode FileChanged")
			return
		}
		a.conn.Send(env)
		return
	}

	d := diff.Compute(previous, string(content))
	env, err := encodeEnvelope(protocol.TypeFileDiffChanged, protocol.FileDiffChanged{
		RiftID:    a.cfg.RiftID,
		Path:      ev.RelPath,
		Diff:      d,
		FileSize:  int64(len(content)),
		Timestamp: time.Now(),
	})
	if err != nil {
		log.WithComponent("agent").Warn().Err(err).Msg("failed to encode FileDiffChanged")
		return
	}
	a.conn.Send(env)
}

// handleInbound applies a server-sent message to disk, marking the
// affected path so the watcher's own event for this write is ignored.
func (a *Agent) handleInbound(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeFileUpdate:
		var payload protocol.FileUpdate
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		a.applyFullContent(payload.Path, payload.Content)

	case protocol.TypeFileDiffUpdate:
		var payload protocol.FileDiffUpdate
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		a.applyDiff(payload.Path, payload.Diff)

	case protocol.TypeForceSync:
		var payload protocol.ForceSync
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		a.applyFullContent(payload.Path, payload.ServerContent)

	case protocol.TypeConflictDetected:
		var payload protocol.ConflictDetected
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		logEvent := log.WithComponent("agent").Warn().Str("path", payload.Path)
		if payload.AutoCreatedRift != nil {
			logEvent = logEvent.Str("conflict_rift", payload.AutoCreatedRift.RiftName)
		}
		logEvent.Msg("conflict detected, overwriting local file with server content")
		a.applyFullContent(payload.Path, payload.ServerContent)

	case protocol.TypeSyncData:
		var payload protocol.SyncData
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			return
		}
		for _, f := range payload.Files {
			a.applyFullContent(f.Path, f.Content)
		}
		a.conn.SetLastCheckpoint(payload.CheckpointID)

	case protocol.TypeCheckpointCreated:
		var payload protocol.CheckpointCreated
		if err := json.Unmarshal(env.Data, &payload); err == nil {
			a.conn.SetLastCheckpoint(payload.CheckpointID)
		}
	}
}

func (a *Agent) applyFullContent(relPath, content string) {
	a.markServerWrite(relPath)
	fullPath := joinProjectPath(a.cfg.Root, relPath)
	if err := writeFileEnsureDir(fullPath, content); err != nil {
		log.WithComponent("agent").Warn().Err(err).Str("path", relPath).Msg("failed to apply server write")
		return
	}
	a.mu.Lock()
	a.lastContent[relPath] = content
	a.mu.Unlock()
}

func (a *Agent) applyDiff(relPath string, d types.FileDiff) {
	a.mu.Lock()
	previous := a.lastContent[relPath]
	a.mu.Unlock()

	result, err := diff.Apply(previous, d)
	if err != nil {
		log.WithComponent("agent").Warn().Err(err).Str("path", relPath).Msg("failed to apply diff, requesting full content")
		env, encErr := encodeEnvelope(protocol.TypeRequestLatestContent, protocol.RequestLatestContent{Path: relPath})
		if encErr == nil {
			a.conn.Send(env)
		}
		return
	}
	a.applyFullContent(relPath, result)
}

func (a *Agent) markServerWrite(relPath string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.serverWriting[relPath] = time.Now()
}

// isSuppressed reports and clears a path's loop-suppression flag: the
// next watcher event for a server-written path is dropped, but only
// within serverWriteSuppressWindow of the write.
func (a *Agent) isSuppressed(relPath string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	writtenAt, ok := a.serverWriting[relPath]
	if !ok {
		return false
	}
	delete(a.serverWriting, relPath)
	return time.Since(writtenAt) < serverWriteSuppressWindow
}

func encodeEnvelope(t protocol.MessageType, payload interface{}) (protocol.Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return protocol.Envelope{}, err
	}
	return protocol.Envelope{Type: t, Data: data}, nil
}
