package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/orders"
)

// Destinations reports the chains settlement can reach.
type Destinations interface {
	Lookup(chainID uint64) (common.Address, bool)
}

// OrderService handles placement and cancellation of limit orders.
type OrderService struct {
	orders  *orders.Store
	dests   Destinations
	limiter domain.RateLimiter
	sink    domain.EventSink
	logger  *slog.Logger

	// CreateLimit caps order creations per owner within CreateWindow.
	CreateLimit  int
	CreateWindow time.Duration
}

// NewOrderService creates an OrderService. dests is nil when cross-chain
// settlement is disabled, in which case only local orders are accepted.
// limiter and sink may be nil.
func NewOrderService(store *orders.Store, dests Destinations, limiter domain.RateLimiter, sink domain.EventSink, logger *slog.Logger) *OrderService {
	return &OrderService{
		orders:       store,
		dests:        dests,
		limiter:      limiter,
		sink:         sink,
		logger:       logger.With(slog.String("component", "order_service")),
		CreateLimit:  10,
		CreateWindow: time.Minute,
	}
}

// Create validates p, locks the required funds and records a new OPEN order.
func (s *OrderService) Create(ctx context.Context, p domain.CreateOrderParams) (domain.Order, error) {
	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "orders:create:"+p.Owner.Hex(), s.CreateLimit, s.CreateWindow)
		if err != nil {
			// A limiter outage must not block trading.
			s.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			return domain.Order{}, fmt.Errorf("order_service: create: %w", domain.ErrRateLimited)
		}
	}

	if err := s.checkDestination(p.DestChainID); err != nil {
		return domain.Order{}, fmt.Errorf("order_service: create: %w", err)
	}

	o, err := s.orders.Create(ctx, p)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: create: %w", err)
	}

	detail := map[string]string{
		"type":         string(o.Type),
		"amount":       o.Amount.String(),
		"price_low":    strconv.FormatInt(o.PriceLow, 10),
		"price_high":   strconv.FormatInt(o.PriceHigh, 10),
		"slippage_bps": strconv.FormatUint(uint64(o.SlippageBps), 10),
		"locked":       o.LockedAmt.String() + " " + string(o.LockedAsset),
	}
	if o.CrossChain() {
		detail["dest_chain_id"] = strconv.FormatUint(o.DestChainID, 10)
		detail["recipient"] = o.Recipient.Hex()
	}
	s.emit(domain.EventOrderCreated, o, detail)
	s.logger.InfoContext(ctx, "order created",
		slog.Uint64("order_id", o.ID),
		slog.String("owner", o.Owner.Hex()),
		slog.String("type", string(o.Type)),
	)
	return o, nil
}

// Cancel cancels caller's OPEN order id and unlocks its funds.
func (s *OrderService) Cancel(ctx context.Context, caller common.Address, id uint64) (domain.Order, error) {
	o, err := s.orders.Cancel(ctx, caller, id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("order_service: cancel: %w", err)
	}
	s.emit(domain.EventOrderCancelled, o, map[string]string{
		"unlocked": o.LockedAmt.String() + " " + string(o.LockedAsset),
	})
	s.logger.InfoContext(ctx, "order cancelled",
		slog.Uint64("order_id", o.ID),
		slog.String("owner", o.Owner.Hex()),
	)
	return o, nil
}

// Get returns order id.
func (s *OrderService) Get(id uint64) (domain.Order, error) {
	return s.orders.Get(id)
}

// ActiveOrder returns the OPEN or EXECUTING order of account.
func (s *OrderService) ActiveOrder(account common.Address) (domain.Order, error) {
	return s.orders.ActiveOrder(account)
}

// ListByOwner returns every order of account, newest first.
func (s *OrderService) ListByOwner(account common.Address) []domain.Order {
	return s.orders.ListByOwner(account)
}

func (s *OrderService) emit(t domain.EventType, o domain.Order, detail map[string]string) {
	if s.sink == nil {
		return
	}
	s.sink.Emit(domain.NewEvent(t, o.ID, o.Owner.Hex(), detail))
}

func (s *OrderService) checkDestination(chainID uint64) error {
	if chainID == 0 {
		return nil
	}
	if s.dests == nil {
		return fmt.Errorf("%w: cross-chain settlement is disabled", domain.ErrInvalidRange)
	}
	if _, ok := s.dests.Lookup(chainID); !ok {
		return fmt.Errorf("%w: no counterpart for dest_chain_id %d", domain.ErrInvalidRange, chainID)
	}
	return nil
}
