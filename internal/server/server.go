// Package server exposes the deck pipeline over HTTP: run submission,
// revisions, run history, health and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/deckforge/internal/config"
	"git.home.luguber.info/inful/deckforge/internal/logfields"
	"git.home.luguber.info/inful/deckforge/internal/loop"
	"git.home.luguber.info/inful/deckforge/internal/revise"
	"git.home.luguber.info/inful/deckforge/internal/runstore"
)

// Server serves the pipeline API on a single listener.
type Server struct {
	pipeline *loop.Pipeline
	reviser  *revise.Reviser
	store    *runstore.Store
	registry *prometheus.Registry

	mu  sync.RWMutex
	cfg *config.Config

	httpServer *http.Server
	watcher    *ConfigWatcher
	janitor    *Janitor
}

// New creates a Server. registry may be nil when metrics are disabled.
func New(cfg *config.Config, pipeline *loop.Pipeline, reviser *revise.Reviser, store *runstore.Store, registry *prometheus.Registry) *Server {
	return &Server{
		pipeline: pipeline,
		reviser:  reviser,
		store:    store,
		registry: registry,
		cfg:      cfg,
	}
}

// Config returns the current configuration snapshot.
func (s *Server) Config() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// ApplyConfig installs a reloaded configuration. Only settings that can
// change without a restart take effect: logging and retention.
func (s *Server) ApplyConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("reloaded configuration invalid: %w", err)
	}
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg
	s.mu.Unlock()

	if old.Server.Addr != cfg.Server.Addr {
		slog.Warn("Listen address change requires restart",
			slog.String("current", old.Server.Addr), slog.String("requested", cfg.Server.Addr))
	}
	slog.Info("Configuration reloaded")
	return nil
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/runs", s.handleCreateRun)
	mux.HandleFunc("POST /api/revisions", s.handleCreateRevision)
	mux.HandleFunc("GET /api/runs", s.handleListRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.registry != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return s.logRequests(mux)
}

// Start runs the server until ctx is canceled.
func (s *Server) Start(ctx context.Context, configPath string) error {
	cfg := s.Config()

	if cfg.Server.WatchConfig && configPath != "" {
		watcher, err := NewConfigWatcher(configPath, s.ApplyConfig)
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		s.watcher = watcher
		defer func() { _ = s.watcher.Stop() }()
	}

	janitor, err := NewJanitor(s.pipeline.OutDir(), func() time.Duration {
		return s.Config().Output.RetainFor.Std()
	}, cfg.Server.JanitorInterval.Std())
	if err != nil {
		return err
	}
	janitor.Start()
	s.janitor = janitor
	defer func() { _ = s.janitor.Stop() }()

	s.httpServer = &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", slog.String("addr", cfg.Server.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP shutdown failed", logfields.Error(err))
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("Request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	})
}
