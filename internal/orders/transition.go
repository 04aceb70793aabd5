package orders

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Fill describes a successful swap for Complete.
type Fill struct {
	Proceeds  *big.Int
	ExecPrice int64
	// Escrow keeps the proceeds out of the owner's available balance because
	// a cross-chain settlement will deliver them.
	Escrow bool
}

// Claim moves an OPEN order to EXECUTING. It is the single compare-and-set
// that decides a race between cancellation and execution.
func (s *Store) Claim(ctx context.Context, id uint64) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("orders: claim %d: %w", id, domain.ErrNotFound)
	}
	if cur.Status != domain.OrderStatusOpen {
		return domain.Order{}, fmt.Errorf("orders: claim %d: %w: status %s", id, domain.ErrAlreadyInactive, cur.Status)
	}

	next := cur.Clone()
	next.Status = domain.OrderStatusExecuting
	next.UpdatedAt = s.now()
	if err := s.save(ctx, next); err != nil {
		return domain.Order{}, fmt.Errorf("orders: claim %d: %w", id, err)
	}
	s.install(next)
	return next.Clone(), nil
}

// Release returns a claimed order to OPEN after a recoverable failure. The
// principal never left the locked balance, so no ledger call is needed.
func (s *Store) Release(ctx context.Context, id uint64, reason string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.executingLocked(id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: release %d: %w", id, err)
	}

	next := cur.Clone()
	next.Status = domain.OrderStatusOpen
	next.FailReason = reason
	next.UpdatedAt = s.now()
	if err := s.save(ctx, next); err != nil {
		// The in-memory claim is released regardless so the order is not
		// stuck; the journal catches up on the next transition.
		s.logger.Error("journal write failed on release",
			slog.Uint64("order_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.install(next)
	return next.Clone(), nil
}

// Complete settles a claimed order: the locked principal is removed and the
// proceeds credited in one ledger step. With f.Escrow the credit is zero and
// the order moves to SETTLING instead of FILLED.
func (s *Store) Complete(ctx context.Context, id uint64, f Fill) (domain.Order, error) {
	if f.Proceeds == nil || f.Proceeds.Sign() < 0 {
		return domain.Order{}, fmt.Errorf("orders: complete %d: %w: proceeds", id, domain.ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.executingLocked(id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: complete %d: %w", id, err)
	}

	credit := domain.CopyAmount(f.Proceeds)
	if f.Escrow {
		credit = new(big.Int)
	}
	if err := s.ledger.UnlockAndCredit(ctx, cur.Owner, cur.LockedAsset, cur.LockedAmt, cur.ProceedsAsset(), credit); err != nil {
		return domain.Order{}, fmt.Errorf("orders: complete %d: %w", id, err)
	}

	next := cur.Clone()
	now := s.now()
	next.Status = domain.OrderStatusFilled
	if f.Escrow {
		next.Status = domain.OrderStatusSettling
	}
	next.Proceeds = domain.CopyAmount(f.Proceeds)
	next.ExecPrice = f.ExecPrice
	next.FailReason = ""
	next.ExecutedAt = &now
	next.UpdatedAt = now
	if err := s.save(ctx, next); err != nil {
		// Funds have already moved; memory must follow the ledger.
		s.logger.Error("journal write failed on complete",
			slog.Uint64("order_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.install(next)
	return next.Clone(), nil
}

// Halt quarantines a claimed order after a ledger invariant violation. Its
// locked funds stay where they are and it is never evaluated again.
func (s *Store) Halt(ctx context.Context, id uint64, reason string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.executingLocked(id)
	if err != nil {
		return domain.Order{}, fmt.Errorf("orders: halt %d: %w", id, err)
	}

	next := cur.Clone()
	next.Status = domain.OrderStatusHalted
	next.FailReason = reason
	next.UpdatedAt = s.now()
	if err := s.save(ctx, next); err != nil {
		s.logger.Error("journal write failed on halt",
			slog.Uint64("order_id", id),
			slog.String("error", err.Error()),
		)
	}
	s.install(next)
	return next.Clone(), nil
}

// FinishSettlement closes a SETTLING order as SETTLED or SETTLEMENT_FAILED.
// Ledger compensation for a failure is the messenger's job; this only records
// the terminal status.
func (s *Store) FinishSettlement(ctx context.Context, id uint64, ok bool, reason string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, found := s.orders[id]
	if !found {
		return domain.Order{}, fmt.Errorf("orders: settle %d: %w", id, domain.ErrNotFound)
	}
	if cur.Status != domain.OrderStatusSettling {
		return domain.Order{}, fmt.Errorf("orders: settle %d: %w: status %s", id, domain.ErrAlreadyInactive, cur.Status)
	}

	next := cur.Clone()
	next.Status = domain.OrderStatusSettled
	if !ok {
		next.Status = domain.OrderStatusSettlementFailed
		next.FailReason = reason
	}
	next.UpdatedAt = s.now()
	if err := s.save(ctx, next); err != nil {
		return domain.Order{}, fmt.Errorf("orders: settle %d: %w", id, err)
	}
	s.install(next)
	return next.Clone(), nil
}

func (s *Store) executingLocked(id uint64) (*domain.Order, error) {
	cur, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if cur.Status != domain.OrderStatusExecuting {
		return nil, fmt.Errorf("%w: status %s", domain.ErrAlreadyInactive, cur.Status)
	}
	return cur, nil
}
