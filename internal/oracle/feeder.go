package oracle

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// PricesChannel is the bus channel price updates are published on.
const PricesChannel = "prices"

type priceEvent struct {
	Event     string `json:"event"`
	Pair      string `json:"pair"`
	Price     int64  `json:"price"`
	Timestamp string `json:"timestamp"`
}

// Feeder polls an upstream Source and mirrors each new snapshot into the
// shared price cache so that every engine instance reads the same value.
type Feeder struct {
	src      Source
	cache    domain.PriceCache
	bus      domain.SignalBus
	pair     string
	interval time.Duration
	logger   *slog.Logger

	last domain.PriceSnapshot
}

// NewFeeder creates a Feeder. bus may be nil.
func NewFeeder(src Source, cache domain.PriceCache, bus domain.SignalBus, interval time.Duration, logger *slog.Logger) *Feeder {
	return &Feeder{
		src:      src,
		cache:    cache,
		bus:      bus,
		pair:     Pair,
		interval: interval,
		logger:   logger.With(slog.String("component", "price_feeder")),
	}
}

// Run polls until ctx is cancelled.
func (f *Feeder) Run(ctx context.Context) error {
	f.logger.Info("price feeder started", slog.Duration("interval", f.interval))
	defer f.logger.Info("price feeder stopped")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	f.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			f.Poll(ctx)
		}
	}
}

// Poll performs one read. Unchanged snapshots are not rewritten.
func (f *Feeder) Poll(ctx context.Context) {
	snap, err := f.src.ReadPrice(ctx)
	if err != nil {
		f.logger.Warn("price read failed", slog.String("error", err.Error()))
		return
	}
	if snap == f.last {
		return
	}
	if err := f.cache.SetPrice(ctx, f.pair, snap); err != nil {
		f.logger.Warn("price cache write failed", slog.String("error", err.Error()))
		return
	}
	f.last = snap

	if f.bus == nil {
		return
	}
	evt, _ := json.Marshal(priceEvent{
		Event:     "price_update",
		Pair:      f.pair,
		Price:     snap.Price,
		Timestamp: snap.Timestamp.Format(time.RFC3339Nano),
	})
	if err := f.bus.Publish(ctx, PricesChannel, evt); err != nil {
		f.logger.Warn("publish price update failed", slog.String("error", err.Error()))
	}
}
