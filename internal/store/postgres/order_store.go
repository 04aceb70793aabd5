package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ domain.OrderStore = (*OrderStore)(nil)

// NewOrderStore creates an OrderStore.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `
	id, owner, type, amount, price_low, price_high, slippage_bps,
	locked_asset, locked_amount, status, dest_chain_id, recipient,
	proceeds, exec_price, fail_reason, created_at, updated_at, executed_at, cancelled_at`

// SaveOrder upserts o and advances the id high-water mark in one transaction.
func (s *OrderStore) SaveOrder(ctx context.Context, o domain.Order) error {
	const upsert = `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			status        = EXCLUDED.status,
			locked_amount = EXCLUDED.locked_amount,
			proceeds      = EXCLUDED.proceeds,
			exec_price    = EXCLUDED.exec_price,
			fail_reason   = EXCLUDED.fail_reason,
			updated_at    = EXCLUDED.updated_at,
			executed_at   = EXCLUDED.executed_at,
			cancelled_at  = EXCLUDED.cancelled_at`
	const mark = `
		INSERT INTO order_ids (singleton, last_id) VALUES (TRUE, $1)
		ON CONFLICT (singleton) DO UPDATE SET last_id = GREATEST(order_ids.last_id, EXCLUDED.last_id)`

	recipient := ""
	if o.Recipient != (common.Address{}) {
		recipient = o.Recipient.Hex()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, upsert,
			int64(o.ID), o.Owner.Hex(), string(o.Type), numeric(o.Amount),
			o.PriceLow, o.PriceHigh, int32(o.SlippageBps),
			string(o.LockedAsset), numeric(o.LockedAmt), string(o.Status),
			int64(o.DestChainID), recipient,
			numeric(o.Proceeds), o.ExecPrice, o.FailReason,
			o.CreatedAt, o.UpdatedAt, o.ExecutedAt, o.CancelledAt,
		); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, mark, int64(o.ID))
		return err
	})
	if err != nil {
		return fmt.Errorf("postgres: save order %d: %w", o.ID, err)
	}
	return nil
}

// LoadOrders returns every persisted order.
func (s *OrderStore) LoadOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load orders: %w", err)
	}
	return collectOrders(rows)
}

// NextOrderID returns the id after the highest ever assigned.
func (s *OrderStore) NextOrderID(ctx context.Context) (uint64, error) {
	var last int64
	err := s.pool.QueryRow(ctx, `SELECT last_id FROM order_ids WHERE singleton`).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: next order id: %w", err)
	}
	return uint64(last) + 1, nil
}

// ListTerminalBefore returns up to limit terminal orders last updated before before.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE status IN ('FILLED', 'SETTLED', 'SETTLEMENT_FAILED', 'CANCELLED') AND updated_at < $1
		ORDER BY id LIMIT $2`
	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	return collectOrders(rows)
}

// DeleteOrders removes the given orders.
func (s *OrderStore) DeleteOrders(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = ANY($1)`, keys); err != nil {
		return fmt.Errorf("postgres: delete orders: %w", err)
	}
	return nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()

	var out []domain.Order
	for rows.Next() {
		var (
			o                            domain.Order
			id, destChain                int64
			owner, typ, asset, st, recip string
			slippage                     int32
			amt, locked, proceeds        pgtype.Numeric
		)
		if err := rows.Scan(
			&id, &owner, &typ, &amt, &o.PriceLow, &o.PriceHigh, &slippage,
			&asset, &locked, &st, &destChain, &recip,
			&proceeds, &o.ExecPrice, &o.FailReason, &o.CreatedAt, &o.UpdatedAt, &o.ExecutedAt, &o.CancelledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.ID = uint64(id)
		o.Owner = common.HexToAddress(owner)
		o.Type = domain.OrderType(typ)
		o.SlippageBps = uint32(slippage)
		o.LockedAsset = domain.Asset(asset)
		o.Status = domain.OrderStatus(st)
		o.DestChainID = uint64(destChain)
		if recip != "" {
			o.Recipient = common.HexToAddress(recip)
		}

		var err error
		if o.Amount, err = amountOrZero(amt); err != nil {
			return nil, fmt.Errorf("postgres: order %d amount: %w", o.ID, err)
		}
		if o.LockedAmt, err = amountOrZero(locked); err != nil {
			return nil, fmt.Errorf("postgres: order %d locked: %w", o.ID, err)
		}
		if o.Proceeds, err = amount(proceeds); err != nil {
			return nil, fmt.Errorf("postgres: order %d proceeds: %w", o.ID, err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read orders: %w", err)
	}
	return out, nil
}
