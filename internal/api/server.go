package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-care/kestrel/internal/catalog"
	"github.com/opensource-care/kestrel/internal/domain"
	"github.com/opensource-care/kestrel/internal/evaluate"
	"github.com/opensource-care/kestrel/internal/matrix"
	"github.com/opensource-care/kestrel/internal/snapshot"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, catalogSvc *catalog.Service, store *matrix.Store, activation *matrix.ActivationManager, evaluator *evaluate.Service, recorder *snapshot.Recorder, version string) *Server {
	handler := NewHandler(repo, cache, bus, catalogSvc, store, activation, evaluator, recorder, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Case evaluation and snapshots
		r.Post("/cases/{caseID}/evaluate", handler.EvaluateCase)
		r.Get("/cases/{caseID}/snapshots", handler.ListSnapshots)
		r.Get("/cases/{caseID}/snapshots/latest", handler.LatestSnapshot)

		// Case tags
		r.Put("/cases/{caseID}/tags/{indicatorID}", handler.PutTag)
		r.Delete("/cases/{caseID}/tags/{indicatorID}", handler.DeleteTag)
		r.Get("/cases/{caseID}/tags", handler.ListTags)

		// Indicator catalog
		r.Post("/indicators", handler.CreateIndicator)
		r.Put("/indicators/{id}", handler.UpdateIndicator)
		r.Post("/indicators/{id}/disable", handler.DisableIndicator)
		r.Get("/indicators", handler.ListIndicators)

		// Matrix configurations
		r.Post("/configs", handler.CreateConfig)
		r.Post("/configs/{id}/activate", handler.ActivateConfig)
		r.Get("/configs/active", handler.GetActiveConfig)
		r.Get("/configs", handler.ListConfigs)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
