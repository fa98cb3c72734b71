// Package server wires the gateway's routes and middleware chain.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dayfusion/liveness-gateway/pkg/gateway/config"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/handlers"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/lifecycle"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/live/sessions"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/metrics"
	"github.com/dayfusion/liveness-gateway/pkg/gateway/mw"
	"github.com/dayfusion/liveness-gateway/pkg/verify"
)

// SessionStore combines the read and write sides of the history archive.
type SessionStore interface {
	handlers.SessionStore
	handlers.HistoryStore
}

// Options carries the external collaborators the server drives. Scorer
// and Uploader are required for live sessions; the rest are optional.
type Options struct {
	Scorer   verify.FrameScorer
	Uploader verify.Uploader
	Liveness verify.LivenessAPI
	Analyzer verify.DocumentAnalyzer
	Matcher  verify.FaceMatcher
	History  SessionStore
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	opts   Options

	metrics   *metrics.Metrics
	tracker   *sessions.Tracker
	lifecycle *lifecycle.Lifecycle
}

func New(cfg config.Config, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		opts:      opts,
		metrics:   metrics.New(""),
		tracker:   sessions.NewTracker(cfg.LiveMaxSessions),
		lifecycle: &lifecycle.Lifecycle{},
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})
	s.mux.Handle("GET /metrics", s.metrics.Handler())

	var history handlers.SessionStore
	var historyWriter handlers.HistoryStore
	if s.opts.History != nil {
		history = s.opts.History
		historyWriter = s.opts.History
	}

	s.mux.Handle("GET /v1/verify/live", handlers.LiveHandler{
		Config:       s.cfg,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
		LiveSessions: s.tracker,
		Metrics:      s.metrics,
		Scorer:       s.opts.Scorer,
		Uploader:     s.opts.Uploader,
		Liveness:     s.opts.Liveness,
		Analyzer:     s.opts.Analyzer,
		Matcher:      s.opts.Matcher,
		History:      historyWriter,
	})
	s.mux.Handle("GET /v1/verify/sessions", handlers.SessionsHandler{
		Config: s.cfg,
		Store:  history,
		Logger: s.logger,
	})
	s.mux.Handle("GET /v1/verify/sessions/{id}", handlers.SessionHandler{
		Store:  history,
		Logger: s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// SetDraining flips readiness so load balancers stop routing here.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// WarnSessions notifies every live session that shutdown is imminent.
func (s *Server) WarnSessions(code, message string) int {
	return s.tracker.WarnAll(code, message)
}

// CancelSessions aborts every live session.
func (s *Server) CancelSessions() int {
	return s.tracker.CancelAll()
}

// WaitSessions blocks until all live sessions have unregistered or the
// context expires.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.tracker.Wait(ctx)
}

// ActiveSessions reports the number of registered live sessions.
func (s *Server) ActiveSessions() int {
	return s.tracker.Count()
}
