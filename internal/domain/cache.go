package domain

import (
	"context"
	"time"
)

// PriceCache shares the latest oracle reading between processes. A feeder
// writes it; engines configured with the cache source read it.
type PriceCache interface {
	SetPrice(ctx context.Context, pair string, snap PriceSnapshot) error
	// GetPrice returns ErrNotFound when nothing is cached for pair.
	GetPrice(ctx context.Context, pair string) (PriceSnapshot, error)
}

// RateLimiter counts requests per key in fixed windows.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out advisory locks with a lifetime. Acquire returns
// ErrLockHeld when another holder owns key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage is one durable stream entry.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus fans engine events out over pub/sub and carries gateway traffic
// over durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	// StreamRead returns entries after lastID, blocking up to block when
	// there are none. An empty result is not an error.
	StreamRead(ctx context.Context, stream string, lastID string, count int, block time.Duration) ([]StreamMessage, error)
}
