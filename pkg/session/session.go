package session

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mothershiphq/mothership/pkg/auth"
	"github.com/mothershiphq/mothership/pkg/bus"
	"github.com/mothershiphq/mothership/pkg/checkpoint"
	"github.com/mothershiphq/mothership/pkg/conflict"
	"github.com/mothershiphq/mothership/pkg/crdt"
	"github.com/mothershiphq/mothership/pkg/diff"
	"github.com/mothershiphq/mothership/pkg/livestate"
	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/protocol"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/syncerr"
	"github.com/mothershiphq/mothership/pkg/txn"
	"github.com/mothershiphq/mothership/pkg/types"
)

const (
	outgoingQueueDepth = 256
	writeWait          = 10 * time.Second
)

// Hub owns every server-side dependency a sync connection dispatches
// against, and admits new connections on the /sync/{riftID} route.
type Hub struct {
	db          storage.Store
	verifier    *auth.Verifier
	bus         *bus.Bus
	live        *livestate.Cache
	checkpoints *checkpoint.Engine
	txns        *txn.Manager
	conflicts   *conflict.Detector
	siteID      string

	upgrader websocket.Upgrader

	mu      sync.Mutex
	dirlogs map[string]*crdt.Log
}

// NewHub wires a Hub. siteID identifies this server replica in
// directory CRDT operation IDs.
func NewHub(
	db storage.Store,
	verifier *auth.Verifier,
	b *bus.Bus,
	live *livestate.Cache,
	checkpoints *checkpoint.Engine,
	txns *txn.Manager,
	conflicts *conflict.Detector,
	siteID string,
) *Hub {
	return &Hub{
		db:          db,
		verifier:    verifier,
		bus:         b,
		live:        live,
		checkpoints: checkpoints,
		txns:        txns,
		conflicts:   conflicts,
		siteID:      siteID,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		dirlogs:     make(map[string]*crdt.Log),
	}
}

func (h *Hub) dirLog(riftID string) *crdt.Log {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.dirlogs[riftID]
	if !ok {
		l = crdt.NewLog(h.siteID)
		h.dirlogs[riftID] = l
	}
	return l
}

// HandleSync upgrades an admitted request to a WebSocket and serves it
// until the connection closes. Registered at /sync/{riftID}.
func (h *Hub) HandleSync(w http.ResponseWriter, r *http.Request) {
	riftID := mux.Vars(r)["riftID"]
	token := r.URL.Query().Get("token")

	user, err := h.verifier.Verify(token)
	if err != nil {
		http.Error(w, "not authorized", http.StatusUnauthorized)
		return
	}

	rift, err := h.db.GetRift(riftID)
	if err != nil {
		http.Error(w, "rift not found", http.StatusNotFound)
		return
	}
	if !isCollaborator(rift, user.ID) {
		http.Error(w, "not a collaborator on this rift", http.StatusForbidden)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithRift(riftID).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s := &sessionConn{
		id:       uuid.NewString(),
		hub:      h,
		ws:       ws,
		riftID:   riftID,
		user:     user,
		outgoing: make(chan protocol.Envelope, outgoingQueueDepth),
	}
	s.serve()
}

func isCollaborator(rift *types.Rift, userID string) bool {
	for _, id := range rift.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}

// sessionConn is one live WebSocket, admitted onto exactly one rift.
type sessionConn struct {
	id     string
	hub    *Hub
	ws     *websocket.Conn
	riftID string
	user   *types.User

	outgoing chan protocol.Envelope
	sub      bus.Subscriber
}

func (s *sessionConn) serve() {
	logger := log.WithRift(s.riftID)
	defer s.ws.Close()

	s.sub = s.hub.bus.Subscribe(s.riftID)
	metrics.WSSessionsActive.Inc()
	metrics.BusActiveTopics.Set(float64(s.hub.bus.ActiveTopics()))
	metrics.BusSubscribersTotal.Set(float64(s.hub.bus.SubscriberCount(s.riftID)))

	defer func() {
		s.hub.bus.Unsubscribe(s.riftID, s.sub)
		metrics.WSSessionsActive.Dec()
		if s.hub.bus.SubscriberCount(s.riftID) == 0 {
			s.hub.live.Evict(s.riftID)
		}
		metrics.BusActiveTopics.Set(float64(s.hub.bus.ActiveTopics()))
		s.broadcast(protocol.TypeCollaboratorLeft, protocol.CollaboratorLeft{RiftID: s.riftID, UserID: s.user.ID})
	}()

	if err := s.sendInitialSync(); err != nil {
		logger.Warn().Err(err).Msg("failed to send initial sync")
		return
	}
	s.broadcast(protocol.TypeCollaboratorJoined, protocol.CollaboratorJoined{
		RiftID: s.riftID, UserID: s.user.ID, Username: s.user.Username,
	})

	relayDone := make(chan struct{})
	go s.relayLoop(relayDone)

	writeDone := make(chan error, 1)
	go s.writeLoop(writeDone)

	s.readLoop(logger)

	close(relayDone)
	s.ws.Close()
	<-writeDone
}

// sendInitialSync answers a new connection's implicit JoinRift with a
// full SyncData of the rift's current live content.
func (s *sessionConn) sendInitialSync() error {
	return s.sendSyncData("")
}

// sendSyncData answers a RequestSync (or an implicit JoinRift) with a
// full SyncData. When fromCheckpoint is set, the response reflects
// that checkpoint's baseline rather than the rift's live content.
func (s *sessionConn) sendSyncData(fromCheckpoint string) error {
	var files map[string]string
	var err error
	if fromCheckpoint != "" {
		files, err = s.hub.checkpoints.FilesAtCheckpoint(fromCheckpoint)
	} else {
		files, err = s.hub.live.Snapshot(s.riftID)
	}
	if err != nil {
		return err
	}
	syncFiles := make([]protocol.SyncFile, 0, len(files))
	for path, content := range files {
		syncFiles = append(syncFiles, protocol.SyncFile{
			Path: path, Content: content, Size: int64(len(content)), ModifiedAt: time.Now(),
		})
	}
	sort.Slice(syncFiles, func(i, j int) bool { return syncFiles[i].Path < syncFiles[j].Path })

	baseline := fromCheckpoint
	if baseline == "" {
		if list, err := s.hub.checkpoints.ListCheckpoints(s.riftID); err == nil && len(list) > 0 {
			latest := list[0]
			for _, cp := range list[1:] {
				if cp.CreatedAt.After(latest.CreatedAt) {
					latest = cp
				}
			}
			baseline = latest.ID
		}
	}

	return s.send(protocol.TypeSyncData, protocol.SyncData{
		RiftID: s.riftID, CheckpointID: baseline, Files: syncFiles,
	})
}

// relayLoop forwards bus traffic from other sessions in this rift onto
// this connection's outgoing queue, skipping this session's own echo.
func (s *sessionConn) relayLoop(done <-chan struct{}) {
	for {
		select {
		case msg, ok := <-s.sub:
			if !ok {
				return
			}
			if msg.FromConn == s.id {
				continue
			}
			select {
			case s.outgoing <- msg.Envelope:
			default:
				log.WithRift(s.riftID).Warn().Msg("outgoing queue full, dropping relayed message")
			}
		case <-done:
			return
		}
	}
}

func (s *sessionConn) writeLoop(done chan<- error) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-s.outgoing:
			if !ok {
				done <- nil
				return
			}
			raw, err := json.Marshal(env)
			if err != nil {
				log.WithRift(s.riftID).Warn().Err(err).Msg("failed to encode outgoing message")
				continue
			}
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
				done <- err
				return
			}
			metrics.WSMessagesTotal.WithLabelValues("out", string(env.Type)).Inc()
		case <-ticker.C:
			hb, _ := protocol.Encode(protocol.TypeHeartbeat, protocol.Heartbeat{})
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, hb); err != nil {
				done <- err
				return
			}
		}
	}
}

// readLoop blocks reading inbound frames and dispatching them until
// the connection errors or closes.
func (s *sessionConn) readLoop(logger zerolog.Logger) {
	for {
		_, raw, err := s.ws.ReadMessage()
		if err != nil {
			logger.Debug().Err(err).Msg("connection closed")
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logger.Warn().Err(err).Msg("malformed frame")
			continue
		}
		metrics.WSMessagesTotal.WithLabelValues("in", string(env.Type)).Inc()

		if err := s.dispatch(env); err != nil {
			logger.Warn().Err(err).Str("type", string(env.Type)).Msg("dispatch failed")
			_ = s.send(protocol.TypeError, protocol.Error{Message: err.Error(), ErrorCode: syncerr.Code(err)})
		}
	}
}

// dispatch handles one inbound envelope per fan-out
// table.
func (s *sessionConn) dispatch(env protocol.Envelope) error {
	switch env.Type {
	case protocol.TypeJoinRift:
		// Join is implicit in the upgrade path; a redundant JoinRift is a no-op.
		return nil

	case protocol.TypeLeaveRift:
		return s.ws.Close()

	case protocol.TypeHeartbeat:
		return s.send(protocol.TypeHeartbeat, protocol.Heartbeat{})

	case protocol.TypeFileChanged:
		var msg protocol.FileChanged
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		return s.applyLegacyFileChanged(msg)

	case protocol.TypeFileDiffChanged:
		var msg protocol.FileDiffChanged
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		return s.applyFileDiff(msg.RiftID, msg.Path, msg.Diff)

	case protocol.TypeBatchDiffChanges:
		var msg protocol.BatchDiffChanges
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		for _, c := range msg.Changes {
			if err := s.applyFileDiff(msg.RiftID, c.Path, c.Diff); err != nil {
				return err
			}
		}
		return nil

	case protocol.TypeCreateCheckpoint:
		var msg protocol.CreateCheckpoint
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		cp, err := s.hub.checkpoints.CreateCheckpoint(msg.RiftID, s.user.Username, msg.Message, false)
		if err != nil {
			return err
		}
		s.broadcast(protocol.TypeCheckpointCreated, protocol.CheckpointCreated{
			RiftID: msg.RiftID, CheckpointID: cp.ID, Author: cp.Author, Timestamp: cp.CreatedAt, Message: cp.Message,
		})
		return nil

	case protocol.TypeRequestSync:
		var msg protocol.RequestSync
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		return s.sendSyncData(msg.FromCheckpoint)

	case protocol.TypeRequestLatestContent:
		var msg protocol.RequestLatestContent
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		content, _, err := s.hub.live.Get(s.riftID, msg.Path)
		if err != nil {
			return err
		}
		return s.send(protocol.TypeContentResponse, protocol.ContentResponse{
			Path: msg.Path, Content: content, Timestamp: time.Now(),
		})

	case protocol.TypeBeginTransaction:
		var msg protocol.BeginTransaction
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		t, err := s.hub.txns.Begin(msg.TransactionID, msg.RiftID, msg.Author, msg.Description, nil)
		if err != nil {
			return err
		}
		return s.send(protocol.TypeTransactionStatus, protocol.TransactionStatus{TransactionID: t.ID, Status: t.Status})

	case protocol.TypeAddFileModification:
		var msg protocol.AddFileModification
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		return s.hub.txns.AddFileModification(msg.TransactionID, msg.Path, msg.Diff)

	case protocol.TypeAddFileCreation:
		var msg protocol.AddFileCreation
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		return s.hub.txns.AddFileCreation(msg.TransactionID, msg.Path, msg.Content)

	case protocol.TypeAddFileDeletion:
		var msg protocol.AddFileDeletion
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		return s.hub.txns.AddFileDeletion(msg.TransactionID, msg.Path)

	case protocol.TypeCommitTransaction:
		var msg protocol.CommitTransaction
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		t, err := s.hub.txns.Commit(msg.TransactionID)
		if err != nil {
			s.broadcast(protocol.TypeTransactionStatus, protocol.TransactionStatus{
				TransactionID: msg.TransactionID, Status: types.TxnRolledBack, Error: err.Error(),
			})
			return err
		}
		s.broadcast(protocol.TypeTransactionStatus, protocol.TransactionStatus{TransactionID: t.ID, Status: t.Status})
		return nil

	case protocol.TypeRollbackTransaction:
		var msg protocol.RollbackTransaction
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		t, err := s.hub.txns.Rollback(msg.TransactionID)
		if err != nil {
			return err
		}
		s.broadcast(protocol.TypeTransactionStatus, protocol.TransactionStatus{TransactionID: t.ID, Status: t.Status})
		return nil

	case protocol.TypeDirectoryUpdate:
		var msg protocol.DirectoryUpdate
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return err
		}
		tombstones := make(map[types.DirOpID]bool, len(msg.Operations))
		for _, op := range msg.Operations {
			if op.Tombstoned {
				tombstones[op.ID] = true
			}
		}
		s.hub.dirLog(s.riftID).Merge(msg.Operations, tombstones)
		s.broadcast(protocol.TypeDirectoryUpdate, msg)
		return nil

	default:
		return fmt.Errorf("unhandled message type %s", env.Type)
	}
}

// applyLegacyFileChanged synthesizes a line diff against the rift's
// current content for path and routes it through the same conflict
// pipeline as FileDiffChanged.
func (s *sessionConn) applyLegacyFileChanged(msg protocol.FileChanged) error {
	original, _, err := s.hub.live.Get(msg.RiftID, msg.Path)
	if err != nil {
		return err
	}
	d := diff.Compute(original, msg.Content)
	return s.applyFileDiff(msg.RiftID, msg.Path, d)
}

// applyFileDiff runs fd through conflict detection and either
// broadcasts the resulting update or isolates the sender into a
// conflict rift and reports it back.
func (s *sessionConn) applyFileDiff(riftID, path string, fd types.FileDiff) error {
	rift, err := s.hub.db.GetRift(riftID)
	if err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrRiftNotFound, err)
	}
	project, err := s.hub.db.GetProject(rift.ProjectID)
	if err != nil {
		return fmt.Errorf("%w: %v", syncerr.ErrProjectNotFound, err)
	}

	result, err := s.hub.conflicts.Handle(project, rift, path, fd, s.user)
	if err != nil {
		return err
	}

	if result.Conflict {
		payload := protocol.ConflictDetected{
			RiftID:          riftID,
			Path:            path,
			ServerContent:   result.ServerContent,
			ClientDiff:      fd,
			ServerTimestamp: result.ServerTimestamp,
			ClientTimestamp: time.Now(),
		}
		if result.ConflictRift != nil {
			payload.AutoCreatedRift = &protocol.ConflictRiftInfo{
				RiftID: result.ConflictRift.ID, RiftName: result.ConflictRift.Name,
			}
			s.broadcast(protocol.TypeConflictRiftCreated, protocol.ConflictRiftCreated{
				OriginalRiftID:   riftID,
				NewRiftID:        result.ConflictRift.ID,
				ConflictRiftName: result.ConflictRift.Name,
			})
		}
		return s.send(protocol.TypeConflictDetected, payload)
	}

	s.broadcast(protocol.TypeFileDiffUpdate, protocol.FileDiffUpdate{
		RiftID: riftID, Path: path, Diff: fd, Author: s.user.Username,
		Timestamp: time.Now(), FileSizeAfter: int64(len(result.NewContent)),
	})
	return nil
}

// send encodes payload and enqueues it for this connection only.
func (s *sessionConn) send(t protocol.MessageType, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", t, err)
	}
	select {
	case s.outgoing <- protocol.Envelope{Type: t, Data: data}:
	default:
		log.WithRift(s.riftID).Warn().Str("type", string(t)).Msg("outgoing queue full, dropping message")
	}
	return nil
}

// broadcast encodes payload and publishes it to every session on this
// rift, tagged with this session's ID so its own relay skips it.
func (s *sessionConn) broadcast(t protocol.MessageType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.WithRift(s.riftID).Warn().Err(err).Str("type", string(t)).Msg("failed to encode broadcast payload")
		return
	}
	s.hub.bus.Publish(s.riftID, bus.Message{
		Envelope: protocol.Envelope{Type: t, Data: data},
		FromConn: s.id,
	})
}
