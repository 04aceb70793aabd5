package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/zetatrigger/internal/engine"
)

// PassRunner runs one execution pass on demand.
type PassRunner interface {
	RunPass(ctx context.Context) (engine.PassResult, error)
}

// EngineHandler serves POST /api/engine/trigger.
type EngineHandler struct {
	runner PassRunner
	logger *slog.Logger
}

// NewEngineHandler creates an EngineHandler.
func NewEngineHandler(runner PassRunner, logger *slog.Logger) *EngineHandler {
	return &EngineHandler{runner: runner, logger: logger.With(slog.String("handler", "engine"))}
}

// Trigger runs a single pass synchronously and reports what it did. A pass
// aborted by stale oracle data still returns its partial result.
// POST /api/engine/trigger
func (h *EngineHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	res, err := h.runner.RunPass(r.Context())
	if err != nil {
		writeJSON(w, statusFor(err), map[string]any{
			"error":  err.Error(),
			"result": res,
		})
		return
	}
	h.logger.Info("manual pass completed",
		slog.Int("evaluated", res.Evaluated),
		slog.Int("executed", res.Executed),
	)
	writeJSON(w, http.StatusOK, res)
}
