// Package api provides HTTP API server components.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/recallhub/recallhub/config"
	"github.com/recallhub/recallhub/pkg/api/handlers"
	"github.com/recallhub/recallhub/pkg/api/middleware"
	"github.com/recallhub/recallhub/pkg/logger"
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Memory handles conversation-memory endpoints
	Memory *handlers.MemoryHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Events handles the websocket event stream
	Events *handlers.WebSocketHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder

	// Tracing enables HTTP server spans
	Tracing bool
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Register global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	// Add metrics middleware if provided
	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	if handlers.Tracing {
		r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.Timeout(cfg.Server.HTTP.ReadTimeout))

	// Register routes
	RegisterRoutes(r, handlers)

	return r
}

// RegisterRoutes registers all API routes.
func RegisterRoutes(r chi.Router, handlers *Handlers) {
	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Memory routes
		if handlers.Memory != nil {
			r.Route("/memory/{userID}", func(r chi.Router) {
				r.Post("/turns", handlers.Memory.RecordTurn)
				r.Post("/context", handlers.Memory.BuildContext)
				r.Delete("/", handlers.Memory.Erase)
			})
		}

		// Event stream
		if handlers.Events != nil {
			r.Get("/events", handlers.Events.ServeHTTP)
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}
}
