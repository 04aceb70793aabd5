package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// CounterpartStore implements domain.CounterpartStore.
type CounterpartStore struct {
	pool *pgxpool.Pool
}

var _ domain.CounterpartStore = (*CounterpartStore)(nil)

// NewCounterpartStore creates a CounterpartStore.
func NewCounterpartStore(pool *pgxpool.Pool) *CounterpartStore {
	return &CounterpartStore{pool: pool}
}

// Upsert registers or replaces the counterpart of c.ChainID.
func (s *CounterpartStore) Upsert(ctx context.Context, c domain.Counterpart) error {
	const query = `
		INSERT INTO counterparts (chain_id, address, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (chain_id) DO UPDATE SET address = EXCLUDED.address, updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, int64(c.ChainID), c.Address.Hex(), c.UpdatedAt); err != nil {
		return fmt.Errorf("postgres: upsert counterpart %d: %w", c.ChainID, err)
	}
	return nil
}

// List returns every registered counterpart.
func (s *CounterpartStore) List(ctx context.Context) ([]domain.Counterpart, error) {
	rows, err := s.pool.Query(ctx, `SELECT chain_id, address, updated_at FROM counterparts ORDER BY chain_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list counterparts: %w", err)
	}
	defer rows.Close()

	var out []domain.Counterpart
	for rows.Next() {
		var (
			c     domain.Counterpart
			chain int64
			addr  string
		)
		if err := rows.Scan(&chain, &addr, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan counterpart: %w", err)
		}
		c.ChainID = uint64(chain)
		c.Address = common.HexToAddress(addr)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list counterparts: %w", err)
	}
	return out, nil
}
