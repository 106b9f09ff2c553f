package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/fileevent-populator/internal/config"
	"github.com/fileevent-populator/internal/metrics"
	"github.com/fileevent-populator/internal/store"
)

// Server represents the HTTP server
type Server struct {
	*http.Server
	router  chi.Router
	gateway store.Gateway
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewServer creates a new HTTP server with all routes configured
func NewServer(cfg config.ServerConfig, gateway store.Gateway, m *metrics.Metrics, logger zerolog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		Server: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler: r,
		},
		router:  r,
		gateway: gateway,
		metrics: m,
		logger:  logger.With().Str("component", "API").Logger(),
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	// Setup routes
	s.setupRoutes()

	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Get("/health", s.handleHealth)
		r.Get("/events", s.handleListEvents)
	})

	s.router.Handle("/metrics", s.metrics.Handler())
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
