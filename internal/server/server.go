// Package server provides the HTTP server and routing for finsight.
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

	"github.com/aristath/finsight/internal/analytics"
	"github.com/aristath/finsight/internal/cache"
	"github.com/aristath/finsight/internal/cost"
	"github.com/aristath/finsight/internal/domain"
	"github.com/aristath/finsight/internal/router"
)

// QueryHandler runs one query through the pipeline.
type QueryHandler interface {
	Handle(ctx context.Context, query, sessionID string, tier domain.UserTier) domain.PipelineResult
}

// CacheStats exposes cache hit/miss counters.
type CacheStats interface {
	GetStats() cache.Stats
}

// RouterStats exposes routing decision counters.
type RouterStats interface {
	GetStats() router.StatsSummary
}

// BudgetStats exposes spending summaries.
type BudgetStats interface {
	GetSummary() cost.Summary
}

// QuerySummary exposes the persisted query-log rollup.
type QuerySummary interface {
	GetSummary(ctx context.Context) (analytics.Summary, error)
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Count() int
}

// LoadReporter samples host load and memory.
type LoadReporter interface {
	Snapshot() router.LoadSnapshot
}

// Config holds server configuration.
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Handler   QueryHandler
	Cache     CacheStats
	Router    RouterStats
	Budget    BudgetStats
	Analytics QuerySummary
	Sessions  SessionCounter
	Load      LoadReporter
}

// Server is the HTTP front of the query pipeline.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New creates a new HTTP server.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
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

	// Timeout; must outlast the slowest pipeline route
	s.router.Use(middleware.Timeout(30 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/stats", s.handleStats)
		r.Get("/system", s.handleSystem)
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
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
