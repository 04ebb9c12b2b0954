// Package api exposes the HTTP interface for the crawl and checkpoint
// service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pagelens/pagelens/internal/config"
	"github.com/pagelens/pagelens/internal/core"
	"github.com/pagelens/pagelens/internal/review"
)

// SessionRunner executes a crawl session to a terminal status.
type SessionRunner interface {
	Run(ctx context.Context, sessionID string) error
}

// Server wires HTTP handlers to the stores, the runner, and the review
// manager.
type Server struct {
	router      chi.Router
	sessions    core.SessionStore
	frontier    core.FrontierStore
	pages       core.PageStore
	checkpoints core.CheckpointStore
	baselines   core.BaselineStore
	reviews     *review.Manager
	runner      SessionRunner
	ids         core.IDGenerator
	clock       core.Clock
	cfg         config.Config
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	sessions core.SessionStore,
	frontier core.FrontierStore,
	pages core.PageStore,
	checkpoints core.CheckpointStore,
	baselines core.BaselineStore,
	reviews *review.Manager,
	runner SessionRunner,
	ids core.IDGenerator,
	clock core.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		sessions:    sessions,
		frontier:    frontier,
		pages:       pages,
		checkpoints: checkpoints,
		baselines:   baselines,
		reviews:     reviews,
		runner:      runner,
		ids:         ids,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.createSession)
			r.Route("/{session_id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Get("/progress", s.getProgress)
				r.Get("/pages", s.listPages)
				r.Get("/checkpoints", s.listCheckpoints)
				r.Post("/cancel", s.cancelSession)
			})
		})
		r.Route("/checkpoints/{checkpoint_id}", func(r chi.Router) {
			r.Get("/", s.getCheckpoint)
			r.Post("/review", s.reviewCheckpoint)
		})
		r.Route("/projects/{project_id}", func(r chi.Router) {
			r.Get("/sessions", s.listSessions)
			r.Get("/baselines", s.listBaselines)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createSessionRequest struct {
	ProjectID           string   `json:"project_id"`
	SeedURL             string   `json:"seed_url"`
	MaxDepth            *int     `json:"max_depth"`
	MaxPages            *int     `json:"max_pages"`
	Concurrency         *int     `json:"concurrency"`
	IncludePatterns     []string `json:"include_patterns"`
	ExcludePatterns     []string `json:"exclude_patterns"`
	FollowExternalLinks *bool    `json:"follow_external_links"`
	VisualEnabled       *bool    `json:"visual_enabled"`
	Profiles            []string `json:"profiles"`
	AutoCreateBaselines *bool    `json:"auto_create_baselines"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	session, err := s.toSession(req)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.sessions.CreateSession(r.Context(), session); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// The session runs detached from the request lifecycle.
	go func() {
		if err := s.runner.Run(context.WithoutCancel(r.Context()), session.ID); err != nil {
			s.logger.Warn("session run ended with error",
				zap.String("session_id", session.ID), zap.Error(err))
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": session.ID,
		"status":     string(session.Status),
	})
}

func (s *Server) toSession(req createSessionRequest) (core.CrawlSession, error) {
	if req.ProjectID == "" {
		return core.CrawlSession{}, errors.New("project_id required")
	}
	seed, err := core.NormalizeURL(req.SeedURL)
	if err != nil {
		return core.CrawlSession{}, fmt.Errorf("seed_url: %w", err)
	}
	id, err := s.ids.NewID()
	if err != nil {
		return core.CrawlSession{}, fmt.Errorf("generate session id: %w", err)
	}

	profiles := s.cfg.Visual.Profiles
	if len(req.Profiles) > 0 {
		profiles = req.Profiles
	}
	parsed := make([]core.CheckpointProfile, 0, len(profiles))
	for _, p := range profiles {
		profile := core.CheckpointProfile(p)
		if !profile.Valid() {
			return core.CrawlSession{}, fmt.Errorf("unknown checkpoint profile %q", p)
		}
		parsed = append(parsed, profile)
	}

	return core.CrawlSession{
		ID:        id,
		ProjectID: req.ProjectID,
		SeedURL:   seed,
		Crawl: core.CrawlConfig{
			MaxDepth:            valueOrDefault(req.MaxDepth, s.cfg.Crawl.MaxDepthDefault),
			MaxPages:            valueOrDefault(req.MaxPages, s.cfg.Crawl.MaxPagesDefault),
			Concurrency:         valueOrDefault(req.Concurrency, s.cfg.Crawl.ConcurrencyDefault),
			PageTimeout:         time.Duration(s.cfg.Crawl.PageTimeoutSec) * time.Second,
			DelayBetweenRounds:  time.Duration(s.cfg.Crawl.RoundDelayMs) * time.Millisecond,
			IncludePatterns:     req.IncludePatterns,
			ExcludePatterns:     req.ExcludePatterns,
			FollowExternalLinks: boolOrDefault(req.FollowExternalLinks, false),
			MaxAttempts:         s.cfg.Crawl.MaxAttempts,
		},
		Visual: core.VisualConfig{
			Enabled:             boolOrDefault(req.VisualEnabled, s.cfg.Visual.Enabled),
			Profiles:            parsed,
			AutoCreateBaselines: boolOrDefault(req.AutoCreateBaselines, s.cfg.Visual.AutoCreateBaselines),
			ScreenshotFormat:    s.cfg.Visual.ScreenshotFormat,
			ScreenshotQuality:   s.cfg.Visual.ScreenshotQuality,
			SettleDelay:         time.Duration(s.cfg.Visual.SettleDelayMs) * time.Millisecond,
		},
		Status:  core.SessionPending,
		Created: s.clock.Now(),
	}, nil
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	session, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"session": session})
}

func (s *Server) getProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	session, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	progress, err := s.frontier.Progress(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to aggregate progress")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"status":     session.Status,
		"progress":   progress,
	})
}

func (s *Server) listPages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	pages, err := s.pages.ListPages(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch pages")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"pages": pages})
}

func (s *Server) listCheckpoints(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	checkpoints, err := s.checkpoints.ListCheckpoints(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch checkpoints")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"checkpoints": checkpoints})
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	err := s.sessions.UpdateSessionStatus(r.Context(), id, core.SessionCancelled, "cancelled via API")
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"session_id": id,
		"status":     string(core.SessionCancelled),
	})
}

func (s *Server) getCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkpoint_id")
	cp, err := s.checkpoints.GetCheckpoint(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, "checkpoint not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"checkpoint": cp})
}

type reviewRequest struct {
	Action   string `json:"action"`
	Reviewer string `json:"reviewer"`
}

func (s *Server) reviewCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "checkpoint_id")
	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		s.writeError(w, http.StatusBadRequest, "missing review action")
		return
	}
	err := s.reviews.Review(r.Context(), id, core.ReviewAction(req.Action), req.Reviewer)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, map[string]string{
			"checkpoint_id": id,
			"action":        req.Action,
		})
	case errors.Is(err, core.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "checkpoint not found")
	case errors.Is(err, core.ErrUnsupportedAction):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	sessions, err := s.sessions.ListSessions(r.Context(), projectID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch sessions")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) listBaselines(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "project_id")
	baselines, err := s.baselines.ListBaselines(r.Context(), projectID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to fetch baselines")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"baselines": baselines})
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func boolOrDefault(ptr *bool, def bool) bool {
	if ptr == nil {
		return def
	}
	return *ptr
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
