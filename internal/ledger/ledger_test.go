package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type memStore struct {
	mu    sync.Mutex
	rows  map[common.Address]domain.AccountBalance
	fail  error
	saves int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[common.Address]domain.AccountBalance)}
}

func (m *memStore) SaveAccount(_ context.Context, bal domain.AccountBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.rows[bal.Account] = bal.Clone()
	return nil
}

func (m *memStore) LoadAccounts(context.Context) ([]domain.AccountBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.AccountBalance, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Clone())
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usdc(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), domain.OneUSDC) }
func zeta(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), domain.OneZETA) }

func TestDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	l := New(nil, testLogger())

	bal, err := l.Deposit(ctx, alice, domain.AssetUSDC, usdc(100))
	require.NoError(t, err)
	assert.Equal(t, 0, bal.AvailableUSDC.Cmp(usdc(100)))

	bal, err = l.Withdraw(ctx, alice, domain.AssetUSDC, usdc(40))
	require.NoError(t, err)
	assert.Equal(t, 0, bal.AvailableUSDC.Cmp(usdc(60)))
}

func TestWithdrawMoreThanAvailable(t *testing.T) {
	ctx := context.Background()
	l := New(nil, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetUSDC, usdc(100))
	require.NoError(t, err)

	_, err = l.Withdraw(ctx, alice, domain.AssetUSDC, usdc(200))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal := l.Balance(alice)
	assert.Equal(t, 0, bal.AvailableUSDC.Cmp(usdc(100)))
}

func TestWithdrawAllLeavesLocked(t *testing.T) {
	ctx := context.Background()
	l := New(nil, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetZETA, zeta(5))
	require.NoError(t, err)
	require.NoError(t, l.Lock(ctx, alice, domain.AssetZETA, zeta(2)))

	taken, err := l.WithdrawAll(ctx, alice, domain.AssetZETA)
	require.NoError(t, err)
	assert.Equal(t, 0, taken.Cmp(zeta(3)))

	bal := l.Balance(alice)
	assert.Zero(t, bal.AvailableZETA.Sign())
	assert.Equal(t, 0, bal.LockedZETA.Cmp(zeta(2)))

	_, err = l.WithdrawAll(ctx, alice, domain.AssetZETA)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	ctx := context.Background()
	l := New(nil, testLogger())

	_, err := l.Deposit(ctx, alice, domain.AssetZETA, big.NewInt(0))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.Deposit(ctx, alice, domain.AssetZETA, big.NewInt(-1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	_, err = l.Deposit(ctx, alice, domain.Asset("BTC"), big.NewInt(1))
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestLockAndUnlockAndCredit(t *testing.T) {
	ctx := context.Background()
	l := New(nil, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetZETA, zeta(1))
	require.NoError(t, err)

	err = l.Lock(ctx, alice, domain.AssetZETA, zeta(2))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	require.NoError(t, l.Lock(ctx, alice, domain.AssetZETA, zeta(1)))
	bal := l.Balance(alice)
	assert.Zero(t, bal.AvailableZETA.Sign())
	assert.Equal(t, 0, bal.LockedZETA.Cmp(zeta(1)))

	proceeds := big.NewInt(260_000)
	require.NoError(t, l.UnlockAndCredit(ctx, alice, domain.AssetZETA, zeta(1), domain.AssetUSDC, proceeds))
	bal = l.Balance(alice)
	assert.Zero(t, bal.LockedZETA.Sign())
	assert.Equal(t, 0, bal.AvailableUSDC.Cmp(proceeds))
}

func TestUnlockBeyondLockedIsInvariantViolation(t *testing.T) {
	ctx := context.Background()
	l := New(nil, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetZETA, zeta(1))
	require.NoError(t, err)

	err = l.UnlockAndCredit(ctx, alice, domain.AssetZETA, zeta(1), domain.AssetZETA, zeta(1))
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, 0, l.Balance(alice).AvailableZETA.Cmp(zeta(1)))
}

func TestStoreFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := New(store, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetUSDC, usdc(10))
	require.NoError(t, err)

	store.fail = errors.New("disk full")
	_, err = l.Deposit(ctx, alice, domain.AssetUSDC, usdc(10))
	require.Error(t, err)
	assert.Equal(t, 0, l.Balance(alice).AvailableUSDC.Cmp(usdc(10)))
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := New(store, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetUSDC, usdc(7))
	require.NoError(t, err)
	require.NoError(t, l.Lock(ctx, alice, domain.AssetUSDC, usdc(3)))

	restored := New(store, testLogger())
	require.NoError(t, restored.Restore(ctx))
	bal := restored.Balance(alice)
	assert.Equal(t, 0, bal.AvailableUSDC.Cmp(usdc(4)))
	assert.Equal(t, 0, bal.LockedUSDC.Cmp(usdc(3)))
	assert.Len(t, restored.Accounts(), 1)
}

func TestConcurrentLocksNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	l := New(nil, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetUSDC, usdc(10))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Lock(ctx, alice, domain.AssetUSDC, usdc(1)) == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	bal := l.Balance(alice)
	assert.Zero(t, bal.AvailableUSDC.Sign())
	assert.Equal(t, 0, bal.Total(domain.AssetUSDC).Cmp(usdc(10)))
}
