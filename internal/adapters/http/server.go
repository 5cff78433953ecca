// Package http exposes the engine over a REST + websocket surface.
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/masltov-creations/opencommotion/internal/logging"
	"github.com/masltov-creations/opencommotion/internal/metrics"
	"github.com/masltov-creations/opencommotion/pkg/fanout"
	"github.com/masltov-creations/opencommotion/pkg/ports"
	"github.com/masltov-creations/opencommotion/pkg/scene"
	"github.com/masltov-creations/opencommotion/pkg/turns"
)

// Server wires the coordinator and realtime hub into HTTP handlers.
type Server struct {
	coordinator *turns.Coordinator
	hub         *fanout.Hub
	ws          *fanout.WSHandler
	authToken   string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures the Server.
type Option func(*Server)

// WithAuthToken requires a bearer token on the /v1 surface.
func WithAuthToken(token string) Option {
	return func(s *Server) { s.authToken = token }
}

// WithLogger configures a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics serves the collectors' registry on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer creates a server over the coordinator and hub.
func NewServer(coordinator *turns.Coordinator, hub *fanout.Hub, opts ...Option) *Server {
	s := &Server{
		coordinator: coordinator,
		hub:         hub,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ws = fanout.NewWSHandler(hub, s.logger, nil)
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Post("/scenes/{sceneID}/turns", s.handleSubmitTurn)
		r.Get("/scenes/{sceneID}", s.handleGetScene)
		r.Post("/scenes/{sceneID}/snapshots", s.handleCreateSnapshot)
		r.Get("/scenes/{sceneID}/snapshots", s.handleListSnapshots)
		r.Post("/scenes/{sceneID}/snapshots/{snapshotID}/restore", s.handleRestoreSnapshot)
		r.Get("/sessions/{sessionID}/events", s.handleEvents)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the bearer token when one is configured. Websocket
// clients may pass it as ?token= since browsers cannot set headers on
// websocket dials.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" || token == r.Header.Get("Authorization") {
			token = r.URL.Query().Get("token")
		}
		if token != s.authToken {
			s.writeError(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing or invalid bearer token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message,omitempty"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type turnRequest struct {
	SessionID    string         `json:"session_id"`
	TurnID       string         `json:"turn_id"`
	BaseRevision int64          `json:"base_revision"`
	Strokes      []scene.Stroke `json:"strokes"`
	Rebuild      bool           `json:"rebuild"`
}

func (s *Server) handleSubmitTurn(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")

	var body turnRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid request body"})
		return
	}

	result, replayed, err := s.coordinator.Submit(r.Context(), turns.Submission{
		SessionID:    body.SessionID,
		SceneID:      sceneID,
		TurnID:       body.TurnID,
		BaseRevision: body.BaseRevision,
		Strokes:      body.Strokes,
		Rebuild:      body.Rebuild,
	})
	if err != nil {
		s.writeTurnError(w, err)
		return
	}

	if replayed {
		w.Header().Set("X-Idempotent-Replay", "true")
	}
	s.writeJSON(w, http.StatusOK, result)
}

// writeTurnError maps the coordinator's error taxonomy onto status codes.
func (s *Server) writeTurnError(w http.ResponseWriter, err error) {
	var conflict *scene.ConflictError
	var compileErr *scene.CompileError
	var applyErr *scene.ApplyError
	switch {
	case errors.As(err, &conflict):
		s.writeError(w, http.StatusConflict, errorBody{
			Error:   "revision_conflict",
			Message: conflict.Error(),
			Details: map[string]any{
				"base_revision":    conflict.BaseRevision,
				"current_revision": conflict.CurrentRevision,
				"summary":          conflict.Summary,
			},
		})
	case errors.As(err, &compileErr):
		s.writeError(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "compile_error",
			Code:    compileErr.Code,
			Message: compileErr.Message,
			Details: map[string]any{
				"stroke_id": compileErr.StrokeID,
				"kind":      compileErr.Kind,
			},
		})
	case errors.As(err, &applyErr):
		s.writeError(w, http.StatusUnprocessableEntity, errorBody{
			Error:   "apply_error",
			Code:    applyErr.Code,
			Message: applyErr.Message,
		})
	case errors.Is(err, scene.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusServiceUnavailable, errorBody{
			Error:   "lock_timeout",
			Message: "scene is busy, retry the turn",
		})
	default:
		s.logger.Error("turn submission failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: err.Error()})
	}
}

func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	sc, err := s.coordinator.Scene(r.Context(), chi.URLParam(r, "sceneID"))
	if err != nil {
		s.logger.Error("scene fetch failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, sc)
}

type snapshotRequest struct {
	SnapshotID string `json:"snapshot_id"`
}

func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")

	var body snapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "invalid request body"})
		return
	}
	if body.SnapshotID == "" {
		s.writeError(w, http.StatusBadRequest, errorBody{Error: "bad_request", Message: "snapshot_id is required"})
		return
	}

	info, err := s.coordinator.Store().Snapshot(r.Context(), sceneID, body.SnapshotID)
	if err != nil {
		if errors.Is(err, scene.ErrSceneNotFound) {
			s.writeError(w, http.StatusNotFound, errorBody{Error: "scene_not_found"})
			return
		}
		s.logger.Error("snapshot failed", "scene_id", sceneID, "err", err)
		s.writeError(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	infos, err := s.coordinator.Store().ListSnapshots(r.Context(), chi.URLParam(r, "sceneID"))
	if err != nil {
		s.logger.Error("snapshot list failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: err.Error()})
		return
	}
	if infos == nil {
		infos = []ports.SnapshotInfo{}
	}
	s.writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, r *http.Request) {
	sceneID := chi.URLParam(r, "sceneID")
	snapshotID := chi.URLParam(r, "snapshotID")

	restored, err := s.coordinator.Store().Restore(r.Context(), sceneID, snapshotID)
	if err != nil {
		if errors.Is(err, scene.ErrSnapshotNotFound) {
			s.writeError(w, http.StatusNotFound, errorBody{Error: "snapshot_not_found"})
			return
		}
		s.logger.Error("restore failed", "scene_id", sceneID, "snapshot_id", snapshotID, "err", err)
		s.writeError(w, http.StatusInternalServerError, errorBody{Error: "internal", Message: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, restored)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	s.ws.Serve(w, r, chi.URLParam(r, "sessionID"))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, body errorBody) {
	s.writeJSON(w, status, body)
}
