package postgres

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// AccountStore implements domain.AccountStore.
type AccountStore struct {
	pool *pgxpool.Pool
}

var _ domain.AccountStore = (*AccountStore)(nil)

// NewAccountStore creates an AccountStore.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// SaveAccount upserts the four balance buckets of one account.
func (s *AccountStore) SaveAccount(ctx context.Context, bal domain.AccountBalance) error {
	const query = `
		INSERT INTO accounts (account, available_zeta, locked_zeta, available_usdc, locked_usdc, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account) DO UPDATE SET
			available_zeta = EXCLUDED.available_zeta,
			locked_zeta    = EXCLUDED.locked_zeta,
			available_usdc = EXCLUDED.available_usdc,
			locked_usdc    = EXCLUDED.locked_usdc,
			updated_at     = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		bal.Account.Hex(),
		numeric(domain.CopyAmount(bal.AvailableZETA)),
		numeric(domain.CopyAmount(bal.LockedZETA)),
		numeric(domain.CopyAmount(bal.AvailableUSDC)),
		numeric(domain.CopyAmount(bal.LockedUSDC)),
		bal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save account %s: %w", bal.Account.Hex(), err)
	}
	return nil
}

// LoadAccounts returns every persisted account.
func (s *AccountStore) LoadAccounts(ctx context.Context) ([]domain.AccountBalance, error) {
	const query = `
		SELECT account, available_zeta, locked_zeta, available_usdc, locked_usdc, updated_at
		FROM accounts`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: load accounts: %w", err)
	}
	defer rows.Close()

	var out []domain.AccountBalance
	for rows.Next() {
		var (
			addr           string
			az, lz, au, lu pgtype.Numeric
			bal            domain.AccountBalance
		)
		if err := rows.Scan(&addr, &az, &lz, &au, &lu, &bal.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan account: %w", err)
		}
		bal.Account = common.HexToAddress(addr)
		if bal.AvailableZETA, err = amountOrZero(az); err == nil {
			if bal.LockedZETA, err = amountOrZero(lz); err == nil {
				if bal.AvailableUSDC, err = amountOrZero(au); err == nil {
					bal.LockedUSDC, err = amountOrZero(lu)
				}
			}
		}
		if err != nil {
			return nil, fmt.Errorf("postgres: account %s: %w", addr, err)
		}
		out = append(out, bal)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load accounts: %w", err)
	}
	return out, nil
}
