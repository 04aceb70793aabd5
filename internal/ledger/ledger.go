// Package ledger custodies per-account available and locked balances for
// ZETA and USDC. Every mutation runs under one mutex and, when a store is
// configured, is written through before it becomes visible.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Ledger is the balance book. It is safe for concurrent use.
type Ledger struct {
	mu       sync.Mutex
	accounts map[common.Address]*domain.AccountBalance
	store    domain.AccountStore
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Ledger. store may be nil for a purely in-memory ledger.
func New(store domain.AccountStore, logger *slog.Logger) *Ledger {
	return &Ledger{
		accounts: make(map[common.Address]*domain.AccountBalance),
		store:    store,
		logger:   logger.With(slog.String("component", "ledger")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Restore loads every persisted account into memory. It must run before the
// ledger serves traffic.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	rows, err := l.store.LoadAccounts(ctx)
	if err != nil {
		return fmt.Errorf("ledger: restore: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range rows {
		bal := row.Clone()
		l.accounts[bal.Account] = &bal
	}
	l.logger.Info("accounts restored", slog.Int("count", len(rows)))
	return nil
}

// Balance returns a copy of the account's balances. Unknown accounts read as zero.
func (l *Ledger) Balance(account common.Address) domain.AccountBalance {
	l.mu.Lock()
	defer l.mu.Unlock()

	if bal, ok := l.accounts[account]; ok {
		return bal.Clone()
	}
	return domain.NewAccountBalance(account)
}

// Accounts returns copies of every known account, ordered by address.
func (l *Ledger) Accounts() []domain.AccountBalance {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.AccountBalance, 0, len(l.accounts))
	for _, bal := range l.accounts {
		out = append(out, bal.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Account.Cmp(out[j].Account) < 0
	})
	return out
}

// Deposit credits amount to the available balance.
func (l *Ledger) Deposit(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) (domain.AccountBalance, error) {
	if err := checkAmount(asset, amount); err != nil {
		return domain.AccountBalance{}, fmt.Errorf("ledger: deposit: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cloneLocked(account)
	next.Available(asset).Add(next.Available(asset), amount)
	if err := l.commitLocked(ctx, next); err != nil {
		return domain.AccountBalance{}, fmt.Errorf("ledger: deposit: %w", err)
	}
	return next.Clone(), nil
}

// Withdraw debits exactly amount from the available balance. The API uses it
// whenever the caller names an amount.
func (l *Ledger) Withdraw(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) (domain.AccountBalance, error) {
	if err := checkAmount(asset, amount); err != nil {
		return domain.AccountBalance{}, fmt.Errorf("ledger: withdraw: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cloneLocked(account)
	avail := next.Available(asset)
	if avail.Cmp(amount) < 0 {
		return domain.AccountBalance{}, fmt.Errorf("ledger: withdraw: %w: have %s %s, need %s",
			domain.ErrInsufficientFunds, avail, asset, amount)
	}
	avail.Sub(avail, amount)
	if err := l.commitLocked(ctx, next); err != nil {
		return domain.AccountBalance{}, fmt.Errorf("ledger: withdraw: %w", err)
	}
	return next.Clone(), nil
}

// WithdrawAll debits the entire available balance of asset and returns the
// amount withdrawn. Locked funds are untouched. The API uses it when the
// caller asks for "all".
func (l *Ledger) WithdrawAll(ctx context.Context, account common.Address, asset domain.Asset) (*big.Int, error) {
	if !asset.Valid() {
		return nil, fmt.Errorf("ledger: withdraw all: %w: unknown asset %q", domain.ErrInvalidAmount, asset)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cloneLocked(account)
	avail := next.Available(asset)
	if avail.Sign() == 0 {
		return nil, fmt.Errorf("ledger: withdraw all: %w: no available %s", domain.ErrInsufficientFunds, asset)
	}
	taken := new(big.Int).Set(avail)
	avail.SetInt64(0)
	if err := l.commitLocked(ctx, next); err != nil {
		return nil, fmt.Errorf("ledger: withdraw all: %w", err)
	}
	return taken, nil
}

// Lock moves amount from available to locked. Only order creation calls it.
func (l *Ledger) Lock(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) error {
	if err := checkAmount(asset, amount); err != nil {
		return fmt.Errorf("ledger: lock: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cloneLocked(account)
	avail := next.Available(asset)
	if avail.Cmp(amount) < 0 {
		return fmt.Errorf("ledger: lock: %w: have %s %s, need %s",
			domain.ErrInsufficientFunds, avail, asset, amount)
	}
	avail.Sub(avail, amount)
	next.Locked(asset).Add(next.Locked(asset), amount)
	if err := l.commitLocked(ctx, next); err != nil {
		return fmt.Errorf("ledger: lock: %w", err)
	}
	return nil
}

// UnlockAndCredit removes lockedAmount of lockedAsset from the locked bucket
// and credits creditAmount of creditAsset to available, in one step.
// Cancellation passes the same asset and amount; execution passes the swap
// proceeds. creditAmount may be zero when proceeds are held elsewhere.
func (l *Ledger) UnlockAndCredit(
	ctx context.Context,
	account common.Address,
	lockedAsset domain.Asset,
	lockedAmount *big.Int,
	creditAsset domain.Asset,
	creditAmount *big.Int,
) error {
	if err := checkAmount(lockedAsset, lockedAmount); err != nil {
		return fmt.Errorf("ledger: unlock: %w", err)
	}
	if !creditAsset.Valid() || creditAmount == nil || creditAmount.Sign() < 0 {
		return fmt.Errorf("ledger: unlock: %w: credit %v %q", domain.ErrInvalidAmount, creditAmount, creditAsset)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cloneLocked(account)
	locked := next.Locked(lockedAsset)
	if locked.Cmp(lockedAmount) < 0 {
		l.logger.Error("unlock exceeds locked balance",
			slog.String("account", account.Hex()),
			slog.String("asset", string(lockedAsset)),
			slog.String("locked", locked.String()),
			slog.String("unlock", lockedAmount.String()),
		)
		return fmt.Errorf("ledger: unlock: %w: locked %s %s < %s",
			domain.ErrInvariantViolation, locked, lockedAsset, lockedAmount)
	}
	locked.Sub(locked, lockedAmount)
	next.Available(creditAsset).Add(next.Available(creditAsset), creditAmount)
	if err := l.commitLocked(ctx, next); err != nil {
		return fmt.Errorf("ledger: unlock: %w", err)
	}
	return nil
}

// Credit adds amount to available without touching locked funds. It returns
// escrowed settlement proceeds to their owner.
func (l *Ledger) Credit(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) error {
	if err := checkAmount(asset, amount); err != nil {
		return fmt.Errorf("ledger: credit: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cloneLocked(account)
	next.Available(asset).Add(next.Available(asset), amount)
	if err := l.commitLocked(ctx, next); err != nil {
		return fmt.Errorf("ledger: credit: %w", err)
	}
	return nil
}

// cloneLocked returns a working copy of the account. Caller holds l.mu.
func (l *Ledger) cloneLocked(account common.Address) domain.AccountBalance {
	if bal, ok := l.accounts[account]; ok {
		return bal.Clone()
	}
	return domain.NewAccountBalance(account)
}

// commitLocked persists next and then installs it. Caller holds l.mu.
func (l *Ledger) commitLocked(ctx context.Context, next domain.AccountBalance) error {
	next.UpdatedAt = l.now()
	if l.store != nil {
		if err := l.store.SaveAccount(ctx, next); err != nil {
			return fmt.Errorf("persist %s: %w", next.Account.Hex(), err)
		}
	}
	l.accounts[next.Account] = &next
	return nil
}

func checkAmount(asset domain.Asset, amount *big.Int) error {
	if !asset.Valid() {
		return fmt.Errorf("%w: unknown asset %q", domain.ErrInvalidAmount, asset)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	return nil
}
