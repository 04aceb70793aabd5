package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/zetatrigger/internal/service"
)

// PriceReader reports the current oracle price.
type PriceReader interface {
	Current(ctx context.Context) (service.PriceView, error)
}

// PriceHandler serves GET /api/price.
type PriceHandler struct {
	prices PriceReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(prices PriceReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{prices: prices, logger: logger.With(slog.String("handler", "price"))}
}

// GetPrice returns the latest ZETA/USDC price with its freshness verdict.
// GET /api/price
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	v, err := h.prices.Current(r.Context())
	if err != nil {
		h.logger.Warn("price read failed", slog.String("error", err.Error()))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}
