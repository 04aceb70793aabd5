package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	status func() domain.EngineStatus
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. status may be nil when no engine
// runs in this process.
func NewHealthHandler(status func() domain.EngineStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{status: status, logger: logger}
}

// HealthCheck responds with a simple JSON status indicating the server is alive.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.status != nil {
		body["engine"] = h.status()
	}
	writeJSON(w, http.StatusOK, body)
}
