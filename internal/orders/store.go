// Package orders owns the set of orders, the per-account active-order index
// and every order status transition. Status changes that move funds call the
// ledger inside the same critical section.
package orders

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Ledger is the subset of the balance ledger the store drives.
type Ledger interface {
	Lock(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) error
	UnlockAndCredit(ctx context.Context, account common.Address, lockedAsset domain.Asset, lockedAmount *big.Int, creditAsset domain.Asset, creditAmount *big.Int) error
}

// Store holds every order in memory, optionally journaled to a durable
// domain.OrderStore. It is safe for concurrent use.
type Store struct {
	mu      sync.Mutex
	orders  map[uint64]*domain.Order
	active  map[common.Address]uint64
	nextID  uint64
	ledger  Ledger
	journal domain.OrderStore
	logger  *slog.Logger
	now     func() time.Time
}

// NewStore creates an order store. journal may be nil.
func NewStore(ledger Ledger, journal domain.OrderStore, logger *slog.Logger) *Store {
	return &Store{
		orders:  make(map[uint64]*domain.Order),
		active:  make(map[common.Address]uint64),
		nextID:  1,
		ledger:  ledger,
		journal: journal,
		logger:  logger.With(slog.String("component", "orders")),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads persisted orders and the id counter. Orders found in
// EXECUTING were interrupted mid-swap; they are halted so their locked funds
// stay quarantined until an operator reconciles them.
func (s *Store) Restore(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	rows, err := s.journal.LoadOrders(ctx)
	if err != nil {
		return fmt.Errorf("orders: restore: %w", err)
	}
	next, err := s.journal.NextOrderID(ctx)
	if err != nil {
		return fmt.Errorf("orders: restore: next id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, row := range rows {
		o := row.Clone()
		if o.Status == domain.OrderStatusExecuting {
			o.Status = domain.OrderStatusHalted
			o.FailReason = "execution interrupted by restart"
			o.UpdatedAt = s.now()
			if err := s.journal.SaveOrder(ctx, o); err != nil {
				return fmt.Errorf("orders: restore: halt %d: %w", o.ID, err)
			}
			s.logger.Error("order halted on restore", slog.Uint64("order_id", o.ID))
		}
		s.orders[o.ID] = &o
		if o.Active() {
			s.active[o.Owner] = o.ID
		}
		if o.ID >= next {
			next = o.ID + 1
		}
	}
	if next > s.nextID {
		s.nextID = next
	}
	s.logger.Info("orders restored",
		slog.Int("count", len(rows)),
		slog.Int("active", len(s.active)),
		slog.Uint64("next_id", s.nextID),
	)
	return nil
}

// Create validates p, locks the funds the order needs and records the order
// as the owner's active order. On any error nothing changes.
func (s *Store) Create(ctx context.Context, p domain.CreateOrderParams) (domain.Order, error) {
	lockAsset, lockAmt, err := validate(p)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: create: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.active[p.Owner]; ok {
		return domain.Order{}, fmt.Errorf("orders: create: %w: order %d", domain.ErrActiveOrderExists, id)
	}
	if err := s.ledger.Lock(ctx, p.Owner, lockAsset, lockAmt); err != nil {
		return domain.Order{}, fmt.Errorf("orders: create: %w", err)
	}

	now := s.now()
	o := domain.Order{
		ID:          s.nextID,
		Owner:       p.Owner,
		Type:        p.Type,
		Amount:      domain.CopyAmount(p.Amount),
		PriceLow:    p.PriceLow,
		PriceHigh:   p.PriceHigh,
		SlippageBps: p.SlippageBps,
		LockedAsset: lockAsset,
		LockedAmt:   lockAmt,
		Status:      domain.OrderStatusOpen,
		DestChainID: p.DestChainID,
		Recipient:   p.Recipient,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if o.CrossChain() && o.Recipient == (common.Address{}) {
		o.Recipient = o.Owner
	}

	if err := s.save(ctx, o); err != nil {
		if uerr := s.ledger.UnlockAndCredit(ctx, o.Owner, lockAsset, lockAmt, lockAsset, lockAmt); uerr != nil {
			s.logger.Error("rollback of order lock failed",
				slog.String("owner", o.Owner.Hex()),
				slog.String("error", uerr.Error()),
			)
		}
		return domain.Order{}, fmt.Errorf("orders: create: %w", err)
	}

	s.orders[o.ID] = &o
	s.active[o.Owner] = o.ID
	s.nextID++
	return o.Clone(), nil
}

// Cancel closes an OPEN order owned by caller and returns its locked funds.
// An order already claimed by the execution loop is no longer cancellable.
func (s *Store) Cancel(ctx context.Context, caller common.Address, id uint64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: cancel %d: %w", id, domain.ErrNotFound)
	}
	if cur.Owner != caller {
		return domain.Order{}, fmt.Errorf("orders: cancel %d: %w", id, domain.ErrUnauthorized)
	}
	if cur.Status != domain.OrderStatusOpen {
		return domain.Order{}, fmt.Errorf("orders: cancel %d: %w: status %s", id, domain.ErrAlreadyInactive, cur.Status)
	}

	if err := s.ledger.UnlockAndCredit(ctx, cur.Owner, cur.LockedAsset, cur.LockedAmt, cur.LockedAsset, cur.LockedAmt); err != nil {
		return domain.Order{}, fmt.Errorf("orders: cancel %d: %w", id, err)
	}

	next := cur.Clone()
	now := s.now()
	next.Status = domain.OrderStatusCancelled
	next.UpdatedAt = now
	next.CancelledAt = &now
	if err := s.save(ctx, next); err != nil {
		if lerr := s.ledger.Lock(ctx, cur.Owner, cur.LockedAsset, cur.LockedAmt); lerr != nil {
			s.logger.Error("rollback of cancel unlock failed",
				slog.Uint64("order_id", id),
				slog.String("error", lerr.Error()),
			)
		}
		return domain.Order{}, fmt.Errorf("orders: cancel %d: %w", id, err)
	}

	s.install(next)
	return next.Clone(), nil
}

// Get returns a copy of the order.
func (s *Store) Get(id uint64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: get %d: %w", id, domain.ErrNotFound)
	}
	return o.Clone(), nil
}

// ActiveOrder returns the account's active order, or ErrNotFound.
func (s *Store) ActiveOrder(account common.Address) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.active[account]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: active %s: %w", account.Hex(), domain.ErrNotFound)
	}
	return s.orders[id].Clone(), nil
}

// ActiveOrderID returns the account's active order id, 0 when there is none.
func (s *Store) ActiveOrderID(account common.Address) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[account]
}

// ListActive returns copies of every OPEN order in id order. Orders already
// claimed by a pass are excluded.
func (s *Store) ListActive() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Order, 0, len(s.active))
	for _, id := range s.active {
		if o := s.orders[id]; o.Status == domain.OrderStatusOpen {
			out = append(out, o.Clone())
		}
	}
	sortByID(out)
	return out
}

// ListSettling returns the orders awaiting their settlement outcome, by id.
func (s *Store) ListSettling() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.Status == domain.OrderStatusSettling {
			out = append(out, o.Clone())
		}
	}
	sortByID(out)
	return out
}

// ListByOwner returns every order the account ever placed, newest first.
func (s *Store) ListByOwner(account common.Address) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.Owner == account {
			out = append(out, o.Clone())
		}
	}
	sortByID(out)
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// ActiveCount returns the number of OPEN or EXECUTING orders.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Forget drops terminal orders from memory once they have been archived.
// Active orders are never dropped.
func (s *Store) Forget(ids []uint64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if o, ok := s.orders[id]; ok && o.Status.Terminal() {
			delete(s.orders, id)
			n++
		}
	}
	return n
}

// install replaces the in-memory order and keeps the active index in step.
// Caller holds s.mu.
func (s *Store) install(o domain.Order) {
	s.orders[o.ID] = &o
	if o.Active() {
		s.active[o.Owner] = o.ID
	} else if s.active[o.Owner] == o.ID {
		delete(s.active, o.Owner)
	}
}

func (s *Store) save(ctx context.Context, o domain.Order) error {
	if s.journal == nil {
		return nil
	}
	if err := s.journal.SaveOrder(ctx, o); err != nil {
		return fmt.Errorf("persist order %d: %w", o.ID, err)
	}
	return nil
}

func sortByID(out []domain.Order) {
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
}

// validate checks p and returns the asset and amount to lock.
func validate(p domain.CreateOrderParams) (domain.Asset, *big.Int, error) {
	if !p.Type.Valid() {
		return "", nil, fmt.Errorf("%w: unknown order type %q", domain.ErrInvalidAmount, p.Type)
	}
	if p.Amount == nil || p.Amount.Sign() <= 0 {
		return "", nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if p.PriceLow <= 0 || p.PriceHigh <= 0 {
		return "", nil, fmt.Errorf("%w: prices must be positive", domain.ErrInvalidRange)
	}
	if p.PriceLow > p.PriceHigh {
		return "", nil, fmt.Errorf("%w: price_low %d > price_high %d", domain.ErrInvalidRange, p.PriceLow, p.PriceHigh)
	}
	if p.PriceHigh > domain.MaxPrice {
		return "", nil, fmt.Errorf("%w: price_high %d above %d", domain.ErrInvalidRange, p.PriceHigh, domain.MaxPrice)
	}
	if p.SlippageBps > domain.MaxSlippageBps {
		return "", nil, fmt.Errorf("%w: %d bps", domain.ErrInvalidSlippage, p.SlippageBps)
	}

	if p.Type == domain.OrderTypeSell {
		return domain.AssetZETA, domain.CopyAmount(p.Amount), nil
	}
	return domain.AssetUSDC, domain.BuyNotional(p.Amount, p.PriceHigh), nil
}
