// Package engine runs execution passes: read a fresh price, evaluate every
// open order against it and commit the ones that trigger.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/orders"
	"github.com/alanyoungcy/zetatrigger/internal/swap"
	"github.com/alanyoungcy/zetatrigger/internal/trigger"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

// OrderBook is the part of the order store the engine drives.
type OrderBook interface {
	ListActive() []domain.Order
	ActiveCount() int
	Claim(ctx context.Context, id uint64) (domain.Order, error)
	Release(ctx context.Context, id uint64, reason string) (domain.Order, error)
	Complete(ctx context.Context, id uint64, f orders.Fill) (domain.Order, error)
	Halt(ctx context.Context, id uint64, reason string) (domain.Order, error)
}

// PriceGuard returns a price that passed the staleness checks.
type PriceGuard interface {
	Fresh(ctx context.Context) (domain.PriceSnapshot, error)
}

// Settler hands executed cross-chain orders to the messenger. Reserve holds
// the destination fee for an order until Send consumes it or ReleaseReserve
// drops it.
type Settler interface {
	Reserve(ctx context.Context, orderID, chainID uint64) (*big.Int, error)
	ReleaseReserve(orderID uint64)
	Send(ctx context.Context, order domain.Order) (domain.SettlementTicket, error)
	Tickets(status domain.TicketStatus) []domain.SettlementTicket
}

// Config holds engine settings.
type Config struct {
	Mode     string
	Interval time.Duration
	// Concurrency bounds the orders committed in parallel within one pass.
	Concurrency int
	// RetryCooldown keeps a released order out of the following passes.
	RetryCooldown time.Duration
	// LockTTL is the per-order advisory lock lifetime when a LockManager is set.
	LockTTL time.Duration
}

// PassResult summarises one execution pass.
type PassResult struct {
	Price     int64     `json:"price"`
	At        time.Time `json:"at"`
	Evaluated int       `json:"evaluated"`
	Triggered int       `json:"triggered"`
	Executed  int       `json:"executed"`
	Failed    int       `json:"failed"`
	Halted    int       `json:"halted"`
	Skipped   int       `json:"skipped"`
}

type passCounters struct {
	triggered, executed, failed, halted, skipped atomic.Int64
}

// Engine evaluates and executes orders.
type Engine struct {
	cfg      Config
	orders   OrderBook
	guard    PriceGuard
	swapper  swap.Executor
	settler  Settler
	locks    domain.LockManager
	sink     domain.EventSink
	cooldown *Cooldown
	logger   *slog.Logger
	started  time.Time

	mu        sync.Mutex
	lastPass  time.Time
	lastPrice int64
}

// New creates an Engine. settler, locks and sink may be nil; without a
// settler cross-chain orders are never executed.
func New(
	cfg Config,
	book OrderBook,
	guard PriceGuard,
	swapper swap.Executor,
	settler Settler,
	locks domain.LockManager,
	sink domain.EventSink,
	logger *slog.Logger,
) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	return &Engine{
		cfg:      cfg,
		orders:   book,
		guard:    guard,
		swapper:  swapper,
		settler:  settler,
		locks:    locks,
		sink:     sink,
		cooldown: NewCooldown(cfg.RetryCooldown),
		logger:   logger.With(slog.String("component", "engine")),
		started:  time.Now(),
	}
}

// Run executes a pass on every tick until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", slog.Duration("interval", e.cfg.Interval))
	defer e.logger.Info("engine stopped")

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := e.RunPass(ctx); err != nil && !errors.Is(err, domain.ErrStaleOracleData) {
				e.logger.Error("pass failed", slog.String("error", err.Error()))
			}
			e.cooldown.Cleanup()
		}
	}
}

// RunPass reads the price once and evaluates every open order against it.
// A stale price skips the whole pass. Failures of individual orders are
// reported as events and never abort the pass.
func (e *Engine) RunPass(ctx context.Context) (PassResult, error) {
	snap, err := e.guard.Fresh(ctx)
	if err != nil {
		e.logger.Warn("pass skipped", slog.String("error", err.Error()))
		e.emit(domain.EventTriggerSkipped, 0, "", map[string]string{"reason": err.Error()})
		return PassResult{At: time.Now().UTC()}, fmt.Errorf("engine: pass: %w", err)
	}

	active := e.orders.ListActive()
	res := PassResult{Price: snap.Price, At: time.Now().UTC(), Evaluated: len(active)}
	var c passCounters

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, o := range active {
		if e.cooldown.Cooling(o.ID) {
			c.skipped.Add(1)
			continue
		}
		d := trigger.Evaluate(o, snap.Price)
		switch d.Outcome {
		case trigger.OutcomeWait:
			continue
		case trigger.OutcomeAnomaly:
			c.skipped.Add(1)
			e.emit(domain.EventTriggerSkipped, o.ID, o.Owner.Hex(), map[string]string{
				"reason": "price outside sanity bound",
				"price":  units.FormatPrice(snap.Price),
			})
			continue
		}
		c.triggered.Add(1)
		g.Go(func() error {
			e.execute(gctx, o, snap, d.MinOut, &c)
			return nil
		})
	}
	_ = g.Wait()

	res.Triggered = int(c.triggered.Load())
	res.Executed = int(c.executed.Load())
	res.Failed = int(c.failed.Load())
	res.Halted = int(c.halted.Load())
	res.Skipped = int(c.skipped.Load())

	e.mu.Lock()
	e.lastPass = res.At
	e.lastPrice = snap.Price
	e.mu.Unlock()

	if res.Triggered > 0 {
		e.logger.Info("pass complete",
			slog.Int64("price", res.Price),
			slog.Int("triggered", res.Triggered),
			slog.Int("executed", res.Executed),
			slog.Int("failed", res.Failed),
			slog.Int("halted", res.Halted),
		)
	}
	return res, nil
}

// Status reports the engine's operational state.
func (e *Engine) Status() domain.EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := domain.EngineStatus{
		Mode:          e.cfg.Mode,
		UptimeSeconds: int64(time.Since(e.started).Seconds()),
		ActiveOrders:  e.orders.ActiveCount(),
		LastPassAt:    e.lastPass,
		LastPrice:     e.lastPrice,
	}
	if e.settler != nil {
		st.PendingTickets = len(e.settler.Tickets(domain.TicketPending))
	}
	return st
}

func (e *Engine) emit(t domain.EventType, orderID uint64, account string, detail map[string]string) {
	if e.sink == nil {
		return
	}
	e.sink.Emit(domain.NewEvent(t, orderID, account, detail))
}
