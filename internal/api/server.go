// SPDX-License-Identifier: MIT

// Package api provides the HTTP surface of the clip service: extraction,
// merging, range streaming and store administration.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/clipworks/clipd/internal/clip"
	"github.com/clipworks/clipd/internal/config"
	"github.com/clipworks/clipd/internal/api/middleware"
	"github.com/clipworks/clipd/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the HTTP API server for clipd.
type Server struct {
	cfg       config.Config
	store     *store.Store
	extractor *clip.Extractor
	merger    *clip.Merger
	log       zerolog.Logger

	router chi.Router
	http   *http.Server
}

// New wires a Server from its collaborators.
func New(cfg config.Config, st *store.Store, ex *clip.Extractor, mg *clip.Merger, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:       cfg,
		store:     st,
		extractor: ex,
		merger:    mg,
		log:       logger,
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics: true,
		EnableLogging: true,
	})

	r.Get("/healthz", s.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Playback path: finalized clips with byte-range support.
	r.Get("/clips/{name}", s.handleStream)
	r.Head("/clips/{name}", s.handleStream)

	r.Route("/api/v1", func(r chi.Router) {
		limited := r.With(middleware.RateLimit(s.cfg.RateLimitPerMinute))
		limited.Post("/clips", s.handleExtract)
		limited.Post("/merges", s.handleMerge)

		r.Get("/clips", s.handleList)
		r.Get("/clips/archive", s.handleArchive)
		r.Delete("/clips/{name}", s.handleDelete)
	})

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start blocks serving HTTP until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.cfg.ListenAddr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
