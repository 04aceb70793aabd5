package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// TicketStore implements domain.TicketStore.
type TicketStore struct {
	pool *pgxpool.Pool
}

var _ domain.TicketStore = (*TicketStore)(nil)

// NewTicketStore creates a TicketStore.
func NewTicketStore(pool *pgxpool.Pool) *TicketStore {
	return &TicketStore{pool: pool}
}

const ticketColumns = `
	order_id, owner, destination_chain, payload_hash, status,
	escrow_asset, escrow_amount, gas_fee, fail_reason, created_at, resolved_at`

// SaveTicket upserts t.
func (s *TicketStore) SaveTicket(ctx context.Context, t domain.SettlementTicket) error {
	const query = `
		INSERT INTO settlement_tickets (` + ticketColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (order_id) DO UPDATE SET
			status      = EXCLUDED.status,
			fail_reason = EXCLUDED.fail_reason,
			resolved_at = EXCLUDED.resolved_at`

	_, err := s.pool.Exec(ctx, query,
		int64(t.OrderID), t.Owner.Hex(), int64(t.DestinationChain), t.PayloadHash.Hex(), string(t.Status),
		string(t.EscrowAsset), numeric(domain.CopyAmount(t.EscrowAmount)), numeric(t.GasFee),
		t.FailReason, t.CreatedAt, t.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save ticket %d: %w", t.OrderID, err)
	}
	return nil
}

// LoadTickets returns every persisted ticket.
func (s *TicketStore) LoadTickets(ctx context.Context) ([]domain.SettlementTicket, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+ticketColumns+` FROM settlement_tickets ORDER BY order_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load tickets: %w", err)
	}
	return collectTickets(rows)
}

// ListResolvedBefore returns up to limit ACKED or FAILED tickets resolved before before.
func (s *TicketStore) ListResolvedBefore(ctx context.Context, before time.Time, limit int) ([]domain.SettlementTicket, error) {
	query := `SELECT ` + ticketColumns + ` FROM settlement_tickets
		WHERE status <> 'PENDING' AND resolved_at < $1
		ORDER BY order_id LIMIT $2`
	rows, err := s.pool.Query(ctx, query, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list resolved tickets: %w", err)
	}
	return collectTickets(rows)
}

// DeleteTickets removes the tickets of the given orders.
func (s *TicketStore) DeleteTickets(ctx context.Context, orderIDs []uint64) error {
	if len(orderIDs) == 0 {
		return nil
	}
	keys := make([]int64, len(orderIDs))
	for i, id := range orderIDs {
		keys[i] = int64(id)
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM settlement_tickets WHERE order_id = ANY($1)`, keys); err != nil {
		return fmt.Errorf("postgres: delete tickets: %w", err)
	}
	return nil
}

func collectTickets(rows pgx.Rows) ([]domain.SettlementTicket, error) {
	defer rows.Close()

	var out []domain.SettlementTicket
	for rows.Next() {
		var (
			t                      domain.SettlementTicket
			orderID, chain         int64
			owner, hash, st, asset string
			escrow, gas            pgtype.Numeric
		)
		if err := rows.Scan(
			&orderID, &owner, &chain, &hash, &st,
			&asset, &escrow, &gas, &t.FailReason, &t.CreatedAt, &t.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ticket: %w", err)
		}
		t.OrderID = uint64(orderID)
		t.Owner = common.HexToAddress(owner)
		t.DestinationChain = uint64(chain)
		t.PayloadHash = common.HexToHash(hash)
		t.Status = domain.TicketStatus(st)
		t.EscrowAsset = domain.Asset(asset)

		var err error
		if t.EscrowAmount, err = amountOrZero(escrow); err != nil {
			return nil, fmt.Errorf("postgres: ticket %d escrow: %w", t.OrderID, err)
		}
		if t.GasFee, err = amount(gas); err != nil {
			return nil, fmt.Errorf("postgres: ticket %d gas fee: %w", t.OrderID, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: read tickets: %w", err)
	}
	return out, nil
}
