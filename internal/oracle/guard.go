package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// maxClockSkew tolerates feeds whose clock runs slightly ahead of ours.
const maxClockSkew = 5 * time.Second

// Guard wraps a Source and rejects snapshots older than MaxStaleness.
type Guard struct {
	src          Source
	MaxStaleness time.Duration
	now          func() time.Time
}

// NewGuard creates a Guard.
func NewGuard(src Source, maxStaleness time.Duration) *Guard {
	return &Guard{
		src:          src,
		MaxStaleness: maxStaleness,
		now:          time.Now,
	}
}

// Fresh reads a snapshot and returns ErrStaleOracleData when it is too old,
// too far in the future, or non-positive. A feed-reported confidence window
// tighter than MaxStaleness takes precedence.
func (g *Guard) Fresh(ctx context.Context) (domain.PriceSnapshot, error) {
	snap, err := g.src.ReadPrice(ctx)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	if err := g.Check(snap); err != nil {
		return domain.PriceSnapshot{}, err
	}
	return snap, nil
}

// Check validates an already-read snapshot.
func (g *Guard) Check(snap domain.PriceSnapshot) error {
	if snap.Price <= 0 {
		return fmt.Errorf("oracle: %w: non-positive price %d", domain.ErrStaleOracleData, snap.Price)
	}
	limit := g.MaxStaleness
	if snap.Confidence > 0 && snap.Confidence < limit {
		limit = snap.Confidence
	}
	age := snap.Age(g.now())
	if age > limit {
		return fmt.Errorf("oracle: %w: age %s exceeds %s", domain.ErrStaleOracleData, age.Truncate(time.Millisecond), limit)
	}
	if age < -maxClockSkew {
		return fmt.Errorf("oracle: %w: timestamp %s is in the future", domain.ErrStaleOracleData, snap.Timestamp.Format(time.RFC3339))
	}
	return nil
}
