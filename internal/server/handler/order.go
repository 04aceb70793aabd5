package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// OrderService is the order-store surface the order endpoints need.
type OrderService interface {
	Create(ctx context.Context, p domain.CreateOrderParams) (domain.Order, error)
	Cancel(ctx context.Context, caller common.Address, id uint64) (domain.Order, error)
	Get(id uint64) (domain.Order, error)
	ActiveOrder(account common.Address) (domain.Order, error)
	ListByOwner(account common.Address) []domain.Order
}

// OrderHandler serves order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger.With(slog.String("handler", "order"))}
}

// createOrderRequest is the body of POST /api/orders.
type createOrderRequest struct {
	Owner       string `json:"owner"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	PriceLow    int64  `json:"price_low"`
	PriceHigh   int64  `json:"price_high"`
	SlippageBps uint32 `json:"slippage_bps"`
	DestChainID uint64 `json:"dest_chain_id,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
}

// CreateOrder places a new limit order.
// POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, err := parseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	typ := domain.OrderType(strings.ToUpper(req.Type))
	if !typ.Valid() {
		writeError(w, http.StatusBadRequest, "type must be BUY or SELL")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	params := domain.CreateOrderParams{
		Owner:       owner,
		Type:        typ,
		Amount:      amount,
		PriceLow:    req.PriceLow,
		PriceHigh:   req.PriceHigh,
		SlippageBps: req.SlippageBps,
		DestChainID: req.DestChainID,
	}
	if req.Recipient != "" {
		if params.Recipient, err = parseAddress(req.Recipient); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	order, err := h.orders.Create(r.Context(), params)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newOrderView(order))
}

// CancelOrder cancels an open order on behalf of its owner.
// DELETE /api/orders/{id}?caller=0x...
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	caller, err := parseAddress(r.URL.Query().Get("caller"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := h.orders.Cancel(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// GetOrder returns a single order.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathOrderID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := h.orders.Get(id)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// ActiveOrder returns the account's open or executing order.
// GET /api/accounts/{address}/active-order
func (h *OrderHandler) ActiveOrder(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	order, err := h.orders.ActiveOrder(addr)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderView(order))
}

// ListOrders returns every order the account has placed.
// GET /api/accounts/{address}/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	list := h.orders.ListByOwner(addr)
	writeJSON(w, http.StatusOK, map[string]any{
		"orders": newOrderViews(list),
		"count":  len(list),
	})
}
