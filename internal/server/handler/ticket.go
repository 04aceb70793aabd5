package handler

import (
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// TicketLister lists settlement tickets by status.
type TicketLister interface {
	Tickets(status domain.TicketStatus) []domain.SettlementTicket
}

// TicketHandler serves GET /api/tickets.
type TicketHandler struct {
	tickets TicketLister
	logger  *slog.Logger
}

// NewTicketHandler creates a TicketHandler.
func NewTicketHandler(tickets TicketLister, logger *slog.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, logger: logger}
}

// ListTickets returns tickets, optionally filtered by ?status=.
// GET /api/tickets
func (h *TicketHandler) ListTickets(w http.ResponseWriter, r *http.Request) {
	status := domain.TicketStatus(strings.ToUpper(r.URL.Query().Get("status")))
	switch status {
	case "", domain.TicketPending, domain.TicketAcked, domain.TicketFailed:
	default:
		writeError(w, http.StatusBadRequest, "status must be PENDING, ACKED or FAILED")
		return
	}
	list := h.tickets.Tickets(status)
	sort.Slice(list, func(i, j int) bool { return list[i].OrderID < list[j].OrderID })
	writeJSON(w, http.StatusOK, map[string]any{
		"tickets": newTicketViews(list),
		"count":   len(list),
	})
}
