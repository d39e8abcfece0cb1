// Package server provides the HTTP status API of the metrics updater.
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

	"github.com/aristath/metrics-updater/internal/database"
	"github.com/aristath/metrics-updater/internal/domain"
	"github.com/aristath/metrics-updater/internal/modules/metrics"
	"github.com/aristath/metrics-updater/internal/modules/runs"
	"github.com/aristath/metrics-updater/internal/reliability"
	"github.com/aristath/metrics-updater/internal/scheduler"
)

// RunHistory reads persisted refresh cycles
type RunHistory interface {
	List(limit int) ([]runs.Run, error)
	Get(id string) (*runs.Run, error)
	Latest() (*runs.Run, error)
}

// RefreshTrigger starts refresh cycles on demand
type RefreshTrigger interface {
	TriggerAsync(trigger runs.Trigger) error
	Running() bool
}

// Updater exposes the dry-run selection and state machine position
type Updater interface {
	Candidates(ctx context.Context) ([]domain.Candidate, error)
	State() metrics.State
}

// JobLister lists scheduled jobs
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// BackupLister lists offsite backups
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
	UploadEnabled() bool
}

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Databases map[string]*database.DB
	History   RunHistory
	Refresh   RefreshTrigger
	Updater   Updater
	Jobs      JobLister    // optional
	Backups   BackupLister // optional
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	port    int
	dataDir string

	databases map[string]*database.DB
	history   RunHistory
	refresh   RefreshTrigger
	updater   Updater
	jobs      JobLister
	backups   BackupLister
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		dataDir:   cfg.DataDir,
		databases: cfg.Databases,
		history:   cfg.History,
		refresh:   cfg.Refresh,
		updater:   cfg.Updater,
		jobs:      cfg.Jobs,
		backups:   cfg.Backups,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Get("/latest", s.handleLatestRun)
			r.Post("/trigger", s.handleTriggerRun)
			r.Get("/{id}", s.handleGetRun)
		})

		r.Get("/candidates", s.handleCandidates)

		r.Route("/system", func(r chi.Router) {
			r.Get("/stats", s.handleSystemStats)
			r.Get("/jobs", s.handleJobs)
		})

		r.Get("/backups", s.handleListBackups)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
