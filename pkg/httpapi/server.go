package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/mothershiphq/mothership/pkg/auth"
	"github.com/mothershiphq/mothership/pkg/checkpoint"
	"github.com/mothershiphq/mothership/pkg/log"
	"github.com/mothershiphq/mothership/pkg/metrics"
	"github.com/mothershiphq/mothership/pkg/protocol"
	"github.com/mothershiphq/mothership/pkg/storage"
	"github.com/mothershiphq/mothership/pkg/syncerr"
	"github.com/mothershiphq/mothership/pkg/types"
	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxUser ctxKey = iota
	ctxToken
)

// Writer is the subset of storage.Store (or *manager.Manager, when raft
// replication is enabled) needed to persist project and rift lifecycle
// changes. Both satisfy it structurally, matching pkg/checkpoint's own
// Writer split between the replicated write path and the local reader.
type Writer interface {
	CreateProject(p *types.Project) error
	UpdateProject(p *types.Project) error
	DeleteProject(id string) error
	CreateRift(r *types.Rift) error
	UpdateRift(r *types.Rift) error
	DeleteRift(id string) error
}

// Server implements the HTTP gateway: project and rift lifecycle
// operations, consumed by pkg/client.
type Server struct {
	db              storage.Store
	writer          Writer
	verifier        *auth.Verifier
	checkpoints     *checkpoint.Engine
	defaultSettings types.ProjectSettings
	router          *mux.Router
	logger          zerolog.Logger
}

// New builds a Server and registers its routes. defaultSettings seeds
// every newly created project's ProjectSettings (auto-checkpoint
// interval and retention cap), matching the server config's
// [checkpoint] section. writer carries project/rift writes through
// raft replication when enabled; db answers reads directly, since
// every replica's FSM is caught up to its own applied index.
func New(db storage.Store, writer Writer, verifier *auth.Verifier, checkpoints *checkpoint.Engine, defaultSettings types.ProjectSettings) *Server {
	s := &Server{
		db:              db,
		writer:          writer,
		verifier:        verifier,
		checkpoints:     checkpoints,
		defaultSettings: defaultSettings,
		router:          mux.NewRouter(),
		logger:          log.WithComponent("httpapi"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	authed := s.router.NewRoute().Subrouter()
	authed.Use(s.authMiddleware)
	authed.HandleFunc("/gateway", s.handleGateway).Methods(http.MethodGet)
	authed.HandleFunc("/gateway/create", s.handleCreateProject).Methods(http.MethodPost)
	authed.HandleFunc("/projects/by-name/{name}", s.handleGetProjectByName).Methods(http.MethodGet)
	authed.HandleFunc("/projects/{id}", s.handleGetProject).Methods(http.MethodGet)
	authed.HandleFunc("/projects/{id}", s.handleDeleteProject).Methods(http.MethodDelete)
	authed.HandleFunc("/projects/{id}/beam", s.handleBeam).Methods(http.MethodPost)

	s.router.Use(s.instrumentMiddleware)
}

// Handler returns the http.Handler to mount on an *http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying *mux.Router so a caller (cmd/mothership-server)
// can register additional routes, such as pkg/session's /sync/{riftID}
// WebSocket endpoint, that need the same path-variable extraction.
func (s *Server) Router() *mux.Router {
	return s.router
}

// ---- middleware ----

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrumentMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := metrics.NewTimer()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		timer.ObserveDurationVec(metrics.APIRequestDuration, r.Method)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			s.writeError(w, http.StatusUnauthorized, syncerr.ErrNotAuthorized)
			return
		}
		user, err := s.verifier.Verify(raw)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx := context.WithValue(r.Context(), ctxUser, user)
		ctx = context.WithValue(ctx, ctxToken, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(r *http.Request) *types.User {
	u, _ := r.Context().Value(ctxUser).(*types.User)
	return u
}

func tokenFromContext(r *http.Request) string {
	t, _ := r.Context().Value(ctxToken).(string)
	return t
}

// ---- response helpers ----

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protocol.APIResponse{Success: status < 400, Data: payload})
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(protocol.APIResponse{Success: false, Error: err.Error()})
}

// ---- handlers ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now(),
	})
}

func isMember(p *types.Project, userID string) bool {
	if p.OwnerID == userID {
		return true
	}
	for _, m := range p.Members {
		if m == userID {
			return true
		}
	}
	return false
}

func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	projects, err := s.db.ListProjects()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}

	accessible := make([]*types.Project, 0, len(projects))
	for _, p := range projects {
		if isMember(p, user.ID) {
			accessible = append(accessible, p)
		}
	}
	metrics.ProjectsTotal.Set(float64(len(projects)))
	s.writeJSON(w, http.StatusOK, accessible)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	var body struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	if body.Name == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("name is required"))
		return
	}

	project := &types.Project{
		ID:          uuid.NewString(),
		Name:        body.Name,
		Description: body.Description,
		OwnerID:     user.ID,
		Members:     []string{user.ID},
		Settings:    s.defaultSettings,
		CreatedAt:   time.Now(),
	}
	if err := s.writer.CreateProject(project); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create project: %w", err))
		return
	}

	rift := &types.Rift{
		ID:            uuid.NewString(),
		ProjectID:     project.ID,
		Name:          "main",
		Collaborators: []string{user.ID},
		Active:        true,
		CreatedAt:     time.Now(),
	}
	if err := s.writer.CreateRift(rift); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create default rift: %w", err))
		return
	}

	s.logger.Info().Str("project_id", project.ID).Str("owner", user.ID).Msg("project created")
	s.writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	id := mux.Vars(r)["id"]
	project, err := s.db.GetProject(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, syncerr.ErrProjectNotFound)
		return
	}
	if !isMember(project, user.ID) {
		s.writeError(w, http.StatusForbidden, syncerr.ErrNotAuthorized)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleGetProjectByName(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	name := mux.Vars(r)["name"]
	project, err := s.db.GetProjectByName(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, syncerr.ErrProjectNotFound)
		return
	}
	if !isMember(project, user.ID) {
		s.writeError(w, http.StatusForbidden, syncerr.ErrNotAuthorized)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	id := mux.Vars(r)["id"]
	project, err := s.db.GetProject(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, syncerr.ErrProjectNotFound)
		return
	}
	if project.OwnerID != user.ID {
		s.writeError(w, http.StatusForbidden, fmt.Errorf("%w: only the owner may delete a project", syncerr.ErrNotAuthorized))
		return
	}

	rifts, err := s.db.ListRiftsByProject(project.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	for _, rift := range rifts {
		if err := s.writer.DeleteRift(rift.ID); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to delete rift %s: %w", rift.ID, err))
			return
		}
	}
	if err := s.writer.DeleteProject(project.ID); err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to delete project: %w", err))
		return
	}

	s.logger.Info().Str("project_id", project.ID).Msg("project deleted")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleBeam(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r)
	projectID := mux.Vars(r)["id"]

	project, err := s.db.GetProject(projectID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, syncerr.ErrProjectNotFound)
		return
	}
	if !isMember(project, user.ID) {
		s.writeError(w, http.StatusForbidden, syncerr.ErrNotAuthorized)
		return
	}

	var req protocol.BeamRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	riftName := req.RiftName
	if riftName == "" {
		riftName = "main"
	}

	rift, err := s.db.GetRiftByName(project.ID, riftName)
	initialSync := req.ForceSync
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to look up rift %s: %w", riftName, err))
			return
		}
		rift = &types.Rift{
			ID:            uuid.NewString(),
			ProjectID:     project.ID,
			Name:          riftName,
			Collaborators: []string{user.ID},
			Active:        true,
			CreatedAt:     time.Now(),
		}
		if err := s.writer.CreateRift(rift); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to create rift: %w", err))
			return
		}
		initialSync = true
	} else if !containsID(rift.Collaborators, user.ID) {
		rift.Collaborators = append(rift.Collaborators, user.ID)
		if err := s.writer.UpdateRift(rift); err != nil {
			s.writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to add collaborator: %w", err))
			return
		}
	}

	checkpoints, err := s.checkpoints.ListCheckpoints(rift.ID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if len(checkpoints) == 0 {
		initialSync = true
	}

	scheme := "ws"
	if r.TLS != nil {
		scheme = "wss"
	}
	wsURL := fmt.Sprintf("%s://%s/sync/%s?token=%s", scheme, r.Host, rift.ID, tokenFromContext(r))

	s.writeJSON(w, http.StatusOK, protocol.BeamResponse{
		ProjectID:           project.ID,
		RiftID:              rift.ID,
		WebSocketURL:        wsURL,
		InitialSyncRequired: initialSync,
		CheckpointCount:     len(checkpoints),
	})
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
