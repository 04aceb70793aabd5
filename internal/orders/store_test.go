package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/ledger"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type memJournal struct {
	mu     sync.Mutex
	rows   map[uint64]domain.Order
	failOn domain.OrderStatus
}

func newMemJournal() *memJournal {
	return &memJournal{rows: make(map[uint64]domain.Order)}
}

func (m *memJournal) SaveOrder(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && o.Status == m.failOn {
		return errors.New("journal unavailable")
	}
	m.rows[o.ID] = o.Clone()
	return nil
}

func (m *memJournal) LoadOrders(context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.rows))
	for _, o := range m.rows {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (m *memJournal) NextOrderID(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max uint64
	for id := range m.rows {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

func (m *memJournal) ListTerminalBefore(context.Context, time.Time, int) ([]domain.Order, error) {
	return nil, nil
}

func (m *memJournal) DeleteOrders(context.Context, []uint64) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zeta(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), domain.OneZETA) }

func setup(t *testing.T, journal domain.OrderStore) (*Store, *ledger.Ledger) {
	t.Helper()
	l := ledger.New(nil, testLogger())
	_, err := l.Deposit(context.Background(), alice, domain.AssetZETA, zeta(1))
	require.NoError(t, err)
	_, err = l.Deposit(context.Background(), alice, domain.AssetUSDC, big.NewInt(1_000_000))
	require.NoError(t, err)
	return NewStore(l, journal, testLogger()), l
}

func sellParams() domain.CreateOrderParams {
	return domain.CreateOrderParams{
		Owner:       alice,
		Type:        domain.OrderTypeSell,
		Amount:      zeta(1),
		PriceLow:    247_500,
		PriceHigh:   262_500,
		SlippageBps: 100,
	}
}

func TestCreateLocksFunds(t *testing.T) {
	ctx := context.Background()
	s, l := setup(t, nil)

	o, err := s.Create(ctx, sellParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), o.ID)
	assert.Equal(t, domain.OrderStatusOpen, o.Status)
	assert.Equal(t, domain.AssetZETA, o.LockedAsset)

	bal := l.Balance(alice)
	assert.Zero(t, bal.AvailableZETA.Sign())
	assert.Equal(t, 0, bal.LockedZETA.Cmp(zeta(1)))

	active, err := s.ActiveOrder(alice)
	require.NoError(t, err)
	assert.Equal(t, o.ID, active.ID)
	assert.Equal(t, o.ID, s.ActiveOrderID(alice))
}

func TestCreateBuyLocksNotionalAtHighBound(t *testing.T) {
	ctx := context.Background()
	s, l := setup(t, nil)

	p := sellParams()
	p.Type = domain.OrderTypeBuy
	p.Amount = zeta(2)
	o, err := s.Create(ctx, p)
	require.NoError(t, err)

	// 2 ZETA at 0.2625 = 0.525 USDC.
	assert.Equal(t, domain.AssetUSDC, o.LockedAsset)
	assert.Equal(t, int64(525_000), o.LockedAmt.Int64())
	assert.Equal(t, int64(475_000), l.Balance(alice).AvailableUSDC.Int64())
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	s, l := setup(t, nil)

	p := sellParams()
	p.PriceLow, p.PriceHigh = 300_000, 200_000
	_, err := s.Create(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	p = sellParams()
	p.PriceHigh = 1_000_000_000_000_000
	_, err = s.Create(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidRange, "ceiling arithmetic would overflow")

	p = sellParams()
	p.Type = domain.OrderTypeBuy
	p.PriceHigh = domain.MaxPrice + 1
	_, err = s.Create(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidRange)

	p = sellParams()
	p.Amount = big.NewInt(0)
	_, err = s.Create(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	p = sellParams()
	p.SlippageBps = 10_001
	_, err = s.Create(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInvalidSlippage)

	p = sellParams()
	p.Amount = zeta(5)
	_, err = s.Create(ctx, p)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	bal := l.Balance(alice)
	assert.Equal(t, 0, bal.AvailableZETA.Cmp(zeta(1)))
	assert.Zero(t, bal.LockedZETA.Sign())
	assert.Zero(t, s.ActiveCount())
}

func TestOneActiveOrderPerAccount(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t, nil)

	p := sellParams()
	p.Amount = big.NewInt(1000)
	_, err := s.Create(ctx, p)
	require.NoError(t, err)

	_, err = s.Create(ctx, p)
	assert.ErrorIs(t, err, domain.ErrActiveOrderExists)
}

func TestCancelTwice(t *testing.T) {
	ctx := context.Background()
	s, l := setup(t, nil)
	o, err := s.Create(ctx, sellParams())
	require.NoError(t, err)

	_, err = s.Cancel(ctx, bob, o.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	cancelled, err := s.Cancel(ctx, alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	assert.NotNil(t, cancelled.CancelledAt)

	before := l.Balance(alice)
	_, err = s.Cancel(ctx, alice, o.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyInactive)
	after := l.Balance(alice)
	assert.Equal(t, 0, before.AvailableZETA.Cmp(after.AvailableZETA))
	assert.Equal(t, 0, after.AvailableZETA.Cmp(zeta(1)))

	_, err = s.Cancel(ctx, alice, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s.ActiveOrder(alice)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestClaimBlocksCancel(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t, nil)
	o, err := s.Create(ctx, sellParams())
	require.NoError(t, err)

	_, err = s.Claim(ctx, o.ID)
	require.NoError(t, err)
	_, err = s.Claim(ctx, o.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyInactive)
	_, err = s.Cancel(ctx, alice, o.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyInactive)

	assert.Empty(t, s.ListActive())
	assert.Equal(t, 1, s.ActiveCount())

	released, err := s.Release(ctx, o.ID, "no liquidity")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusOpen, released.Status)
	assert.Len(t, s.ListActive(), 1)
}

func TestCompleteCreditsProceeds(t *testing.T) {
	ctx := context.Background()
	s, l := setup(t, nil)
	o, err := s.Create(ctx, sellParams())
	require.NoError(t, err)
	_, err = s.Claim(ctx, o.ID)
	require.NoError(t, err)

	done, err := s.Complete(ctx, o.ID, Fill{Proceeds: big.NewInt(260_000), ExecPrice: 260_000})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, done.Status)
	assert.False(t, done.Active())

	bal := l.Balance(alice)
	assert.Zero(t, bal.LockedZETA.Sign())
	assert.Equal(t, int64(1_260_000), bal.AvailableUSDC.Int64())
	assert.Zero(t, s.ActiveOrderID(alice))
}

func TestCompleteWithEscrowSettles(t *testing.T) {
	ctx := context.Background()
	s, l := setup(t, nil)
	p := sellParams()
	p.DestChainID = 8453
	o, err := s.Create(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, alice, o.Recipient)
	_, err = s.Claim(ctx, o.ID)
	require.NoError(t, err)

	done, err := s.Complete(ctx, o.ID, Fill{Proceeds: big.NewInt(260_000), ExecPrice: 260_000, Escrow: true})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSettling, done.Status)
	assert.Equal(t, int64(1_000_000), l.Balance(alice).AvailableUSDC.Int64())

	failed, err := s.FinishSettlement(ctx, o.ID, false, "timeout")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusSettlementFailed, failed.Status)

	_, err = s.FinishSettlement(ctx, o.ID, true, "")
	assert.ErrorIs(t, err, domain.ErrAlreadyInactive)
}

func TestHaltKeepsFundsLocked(t *testing.T) {
	ctx := context.Background()
	s, l := setup(t, nil)
	o, err := s.Create(ctx, sellParams())
	require.NoError(t, err)
	_, err = s.Claim(ctx, o.ID)
	require.NoError(t, err)

	halted, err := s.Halt(ctx, o.ID, "invariant")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusHalted, halted.Status)
	assert.Equal(t, 0, l.Balance(alice).LockedZETA.Cmp(zeta(1)))
	assert.Zero(t, s.ActiveCount())
}

func TestJournalFailureRollsBackCreate(t *testing.T) {
	ctx := context.Background()
	j := newMemJournal()
	j.failOn = domain.OrderStatusOpen
	s, l := setup(t, j)

	_, err := s.Create(ctx, sellParams())
	require.Error(t, err)
	assert.Equal(t, 0, l.Balance(alice).AvailableZETA.Cmp(zeta(1)))
	assert.Zero(t, s.ActiveCount())
}

func TestRestoreHaltsInterruptedExecution(t *testing.T) {
	ctx := context.Background()
	j := newMemJournal()
	s, l := setup(t, j)
	o, err := s.Create(ctx, sellParams())
	require.NoError(t, err)
	_, err = s.Claim(ctx, o.ID)
	require.NoError(t, err)

	restored := NewStore(l, j, testLogger())
	require.NoError(t, restored.Restore(ctx))
	got, err := restored.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusHalted, got.Status)

	p := sellParams()
	p.Amount = big.NewInt(1)
	p.Type = domain.OrderTypeBuy
	next, err := restored.Create(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.ID)
}

func TestConcurrentCancelAndClaim(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		s, l := setup(t, nil)
		o, err := s.Create(ctx, sellParams())
		require.NoError(t, err)

		var wg sync.WaitGroup
		var cancelErr, claimErr error
		wg.Add(2)
		go func() { defer wg.Done(); _, cancelErr = s.Cancel(ctx, alice, o.ID) }()
		go func() { defer wg.Done(); _, claimErr = s.Claim(ctx, o.ID) }()
		wg.Wait()

		require.True(t, (cancelErr == nil) != (claimErr == nil), "exactly one must win")
		bal := l.Balance(alice)
		if cancelErr == nil {
			assert.ErrorIs(t, claimErr, domain.ErrAlreadyInactive)
			assert.Equal(t, 0, bal.AvailableZETA.Cmp(zeta(1)))
		} else {
			assert.ErrorIs(t, cancelErr, domain.ErrAlreadyInactive)
			assert.Equal(t, 0, bal.LockedZETA.Cmp(zeta(1)))
		}
	}
}

func TestListByOwnerNewestFirst(t *testing.T) {
	ctx := context.Background()
	s, _ := setup(t, nil)
	p := sellParams()
	p.Amount = big.NewInt(10)
	first, err := s.Create(ctx, p)
	require.NoError(t, err)
	_, err = s.Cancel(ctx, alice, first.ID)
	require.NoError(t, err)
	second, err := s.Create(ctx, p)
	require.NoError(t, err)

	list := s.ListByOwner(alice)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Empty(t, s.ListByOwner(bob))

	assert.Equal(t, 1, s.Forget([]uint64{first.ID, second.ID}))
}
