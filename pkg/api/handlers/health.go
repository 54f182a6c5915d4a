// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/recallhub/recallhub/pkg/api/response"
	"github.com/recallhub/recallhub/pkg/memory"
	"github.com/recallhub/recallhub/pkg/version"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	engine    *memory.Engine
	startedAt time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(engine *memory.Engine) *HealthHandler {
	return &HealthHandler{
		engine:    engine,
		startedAt: time.Now(),
	}
}

// Health handles the /health endpoint (liveness probe).
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Ready handles the /ready endpoint (readiness probe). The service is ready
// once the memory engine has started.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.engine != nil && h.engine.Started() {
		response.JSON(w, http.StatusOK, map[string]bool{
			"ready": true,
		})
	} else {
		response.JSON(w, http.StatusServiceUnavailable, map[string]bool{
			"ready": false,
		})
	}
}

// Status handles the /status endpoint (detailed status).
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]any{
		"started":        h.engine != nil && h.engine.Started(),
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"version":        version.Info(),
	})
}
