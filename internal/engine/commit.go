package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/orders"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

// execute commits one triggered order. Every failure is contained here.
func (e *Engine) execute(ctx context.Context, o domain.Order, snap domain.PriceSnapshot, minOut *big.Int, c *passCounters) {
	log := e.logger.With(
		slog.Uint64("order_id", o.ID),
		slog.String("owner", o.Owner.Hex()),
		slog.String("type", string(o.Type)),
	)

	if e.locks != nil {
		unlock, err := e.locks.Acquire(ctx, "order:"+strconv.FormatUint(o.ID, 10), e.cfg.LockTTL)
		if err != nil {
			if !errors.Is(err, domain.ErrLockHeld) {
				log.Warn("order lock failed", slog.String("error", err.Error()))
			}
			c.skipped.Add(1)
			return
		}
		defer unlock()
	}

	claimed := false
	settled := false
	defer func() {
		if r := recover(); r != nil {
			log.Error("panic in order commit", slog.Any("panic", r))
			c.failed.Add(1)
			if claimed && !settled {
				e.halt(ctx, o, fmt.Sprintf("panic during execution: %v", r), log)
			}
		}
	}()

	claim, err := e.orders.Claim(ctx, o.ID)
	if err != nil {
		// Cancelled or taken by a concurrent pass since the listing.
		log.Debug("claim lost", slog.String("error", err.Error()))
		c.skipped.Add(1)
		return
	}
	claimed = true

	if claim.CrossChain() {
		if err := e.reserveFee(ctx, claim); err != nil {
			e.release(ctx, claim, err, log)
			c.failed.Add(1)
			return
		}
		// No-op once Send has consumed the hold.
		defer e.settler.ReleaseReserve(claim.ID)
	}

	out, err := e.swapper.Execute(ctx, claim.LockedAsset, claim.LockedAmt, claim.ProceedsAsset(), minOut)
	if err == nil && (out == nil || out.Cmp(minOut) < 0) {
		err = fmt.Errorf("%w: swap returned %v below minimum %s", domain.ErrInvariantViolation, out, minOut)
	}
	if err != nil {
		if errors.Is(err, domain.ErrInvariantViolation) {
			settled = true
			e.halt(ctx, claim, err.Error(), log)
			c.halted.Add(1)
			return
		}
		e.release(ctx, claim, err, log)
		c.failed.Add(1)
		return
	}

	done, err := e.orders.Complete(ctx, claim.ID, orders.Fill{
		Proceeds:  out,
		ExecPrice: snap.Price,
		Escrow:    claim.CrossChain(),
	})
	settled = true
	if err != nil {
		e.halt(ctx, claim, err.Error(), log)
		c.halted.Add(1)
		return
	}
	c.executed.Add(1)

	log.Info("order executed",
		slog.Int64("price", snap.Price),
		slog.String("proceeds", out.String()),
		slog.String("status", string(done.Status)),
	)
	e.emit(domain.EventOrderExecuted, done.ID, done.Owner.Hex(), map[string]string{
		"price":        units.FormatPrice(snap.Price),
		"sold":         units.FormatAmount(done.LockedAmt, done.LockedAsset) + " " + string(done.LockedAsset),
		"proceeds":     units.FormatAmount(out, done.ProceedsAsset()) + " " + string(done.ProceedsAsset()),
		"proceeds_raw": out.String(),
		"status":       string(done.Status),
	})

	if done.CrossChain() {
		// Send resolves its own ticket and refunds the escrow on failure.
		if _, err := e.settler.Send(ctx, done); err != nil {
			log.Warn("settlement dispatch failed", slog.String("error", err.Error()))
		}
	}
}

// reserveFee holds the destination gas fee before the swap, so an order that
// cannot be settled never trades.
func (e *Engine) reserveFee(ctx context.Context, o domain.Order) error {
	if e.settler == nil {
		return fmt.Errorf("engine: no messenger for chain %d: %w", o.DestChainID, domain.ErrNotFound)
	}
	_, err := e.settler.Reserve(ctx, o.ID, o.DestChainID)
	return err
}

func (e *Engine) release(ctx context.Context, o domain.Order, cause error, log *slog.Logger) {
	log.Warn("execution failed, order reopened", slog.String("error", cause.Error()))
	if _, err := e.orders.Release(ctx, o.ID, cause.Error()); err != nil {
		log.Error("release failed", slog.String("error", err.Error()))
	}
	e.cooldown.Mark(o.ID)
	e.emit(domain.EventOrderExecutionFailed, o.ID, o.Owner.Hex(), map[string]string{
		"reason": cause.Error(),
	})
}

func (e *Engine) halt(ctx context.Context, o domain.Order, reason string, log *slog.Logger) {
	log.Error("order halted", slog.String("reason", reason))
	if _, err := e.orders.Halt(ctx, o.ID, reason); err != nil {
		log.Error("halt failed", slog.String("error", err.Error()))
	}
	e.emit(domain.EventOrderHalted, o.ID, o.Owner.Hex(), map[string]string{
		"reason": reason,
	})
}
