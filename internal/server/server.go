// Package server provides the HTTP API for on-demand selection and locking.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"captionbandit/internal/alerts"
	"captionbandit/internal/database"
	"captionbandit/internal/modules/assignments"
	"captionbandit/internal/modules/selection"
	"captionbandit/internal/modules/stats"
	"captionbandit/internal/scheduler"
)

// Config holds server configuration
type Config struct {
	Log           zerolog.Logger
	Port          int
	StatsDB       *database.DB
	AssignmentsDB *database.DB
	Selector      *selection.Selector
	Locker        *assignments.Locker
	Performance   *stats.Repository
	Scheduler     *scheduler.Scheduler
	Jobs          map[string]scheduler.Job
	AlertSink     *alerts.LogSink
}

// Server is the HTTP server for the caption bandit API
type Server struct {
	router        *chi.Mux
	server        *http.Server
	log           zerolog.Logger
	statsDB       *database.DB
	assignmentsDB *database.DB
	selector      *selection.Selector
	locker        *assignments.Locker
	performance   *stats.Repository
	sched         *scheduler.Scheduler
	jobs          map[string]scheduler.Job
	alertSink     *alerts.LogSink
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		log:           cfg.Log.With().Str("component", "server").Logger(),
		statsDB:       cfg.StatsDB,
		assignmentsDB: cfg.AssignmentsDB,
		selector:      cfg.Selector,
		locker:        cfg.Locker,
		performance:   cfg.Performance,
		sched:         cfg.Scheduler,
		jobs:          cfg.Jobs,
		alertSink:     cfg.AlertSink,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/selection", s.handleSelection)
		r.Post("/assignments/reserve", s.handleReserve)
		r.Get("/stats/{audienceID}", s.handleStats)
		r.Get("/alerts", s.handleAlerts)
		r.Post("/jobs/{name}/run", s.handleRunJob)
	})
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("HTTP server shutting down")
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router (used by tests)
func (s *Server) Router() http.Handler {
	return s.router
}
