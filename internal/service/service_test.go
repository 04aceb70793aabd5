package service

import (
	"context"
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
	"github.com/alanyoungcy/zetatrigger/internal/oracle"
	"github.com/alanyoungcy/zetatrigger/internal/orders"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Emit(e domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type denyLimiter struct{}

func (denyLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) { return false, nil }

func TestAccountLifecycleEmitsEvents(t *testing.T) {
	ctx := context.Background()
	sink := &recorder{}
	svc := NewAccountService(ledger.New(nil, testLogger()), sink, testLogger())

	_, err := svc.Deposit(ctx, alice, domain.AssetUSDC, big.NewInt(5_000_000))
	require.NoError(t, err)
	bal, err := svc.Withdraw(ctx, alice, domain.AssetUSDC, big.NewInt(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, "4000000", bal.AvailableUSDC.String())

	_, err = svc.Withdraw(ctx, alice, domain.AssetUSDC, big.NewInt(10_000_000))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	out, bal, err := svc.WithdrawAll(ctx, alice, domain.AssetUSDC)
	require.NoError(t, err)
	assert.Equal(t, "4000000", out.String())
	assert.Zero(t, bal.AvailableUSDC.Sign())

	assert.Equal(t, []domain.EventType{domain.EventDeposit, domain.EventWithdraw, domain.EventWithdraw}, sink.types())
}

func TestOrderCreateAndCancel(t *testing.T) {
	ctx := context.Background()
	sink := &recorder{}
	l := ledger.New(nil, testLogger())
	_, err := l.Deposit(ctx, alice, domain.AssetZETA, domain.OneZETA)
	require.NoError(t, err)
	svc := NewOrderService(orders.NewStore(l, nil, testLogger()), nil, nil, sink, testLogger())

	o, err := svc.Create(ctx, domain.CreateOrderParams{
		Owner: alice, Type: domain.OrderTypeSell, Amount: domain.OneZETA,
		PriceLow: 247_500, PriceHigh: 262_500, SlippageBps: 100,
	})
	require.NoError(t, err)
	active, err := svc.ActiveOrder(alice)
	require.NoError(t, err)
	assert.Equal(t, o.ID, active.ID)

	_, err = svc.Cancel(ctx, alice, o.ID)
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, alice, o.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyInactive)

	assert.Equal(t, []domain.EventType{domain.EventOrderCreated, domain.EventOrderCancelled}, sink.types())
	assert.Len(t, svc.ListByOwner(alice), 1)
}

func TestOrderCreateRateLimited(t *testing.T) {
	l := ledger.New(nil, testLogger())
	svc := NewOrderService(orders.NewStore(l, nil, testLogger()), nil, denyLimiter{}, nil, testLogger())
	_, err := svc.Create(context.Background(), domain.CreateOrderParams{
		Owner: alice, Type: domain.OrderTypeSell, Amount: domain.OneZETA,
		PriceLow: 1, PriceHigh: 2,
	})
	require.ErrorIs(t, err, domain.ErrRateLimited)
}

type knownChains map[uint64]common.Address

func (k knownChains) Lookup(chainID uint64) (common.Address, bool) {
	a, ok := k[chainID]
	return a, ok
}

func TestOrderCreateChecksDestination(t *testing.T) {
	ctx := context.Background()
	params := domain.CreateOrderParams{
		Owner: alice, Type: domain.OrderTypeSell, Amount: domain.OneZETA,
		PriceLow: 247_500, PriceHigh: 262_500, SlippageBps: 100, DestChainID: 8453,
	}

	tests := []struct {
		name  string
		dests Destinations
		dest  uint64
		ok    bool
	}{
		{"settlement disabled", nil, 8453, false},
		{"unregistered chain", knownChains{1: alice}, 8453, false},
		{"registered chain", knownChains{8453: alice}, 8453, true},
		{"local order without messenger", nil, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := ledger.New(nil, testLogger())
			_, err := l.Deposit(ctx, alice, domain.AssetZETA, domain.OneZETA)
			require.NoError(t, err)
			svc := NewOrderService(orders.NewStore(l, nil, testLogger()), tt.dests, nil, nil, testLogger())

			p := params
			p.DestChainID = tt.dest
			_, err = svc.Create(ctx, p)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrInvalidRange)
			assert.Zero(t, l.Balance(alice).LockedZETA.Sign(), "nothing locked")
		})
	}
}

func TestPriceViewFlagsStale(t *testing.T) {
	src := oracle.NewStatic(0)
	src.Set(260_000, time.Now().Add(-time.Hour))
	svc := NewPriceService(src, oracle.NewGuard(src, time.Minute))

	v, err := svc.Current(context.Background())
	require.NoError(t, err)
	assert.False(t, v.Fresh)
	assert.Equal(t, "0.26", v.Display)
	assert.Contains(t, v.Reason, "stale")
}
