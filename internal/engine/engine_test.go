package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/ledger"
	"github.com/alanyoungcy/zetatrigger/internal/messenger"
	"github.com/alanyoungcy/zetatrigger/internal/oracle"
	"github.com/alanyoungcy/zetatrigger/internal/orders"
	"github.com/alanyoungcy/zetatrigger/internal/swap"
)

const destChain uint64 = 8453

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

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

func (r *recorder) count(t domain.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

type fakeSwap struct {
	calls atomic.Int64
	fn    func(assetIn domain.Asset, amountIn *big.Int, minOut *big.Int) (*big.Int, error)
}

func (f *fakeSwap) Execute(_ context.Context, assetIn domain.Asset, amountIn *big.Int, _ domain.Asset, minOut *big.Int) (*big.Int, error) {
	f.calls.Add(1)
	return f.fn(assetIn, amountIn, minOut)
}

type heldLocks struct{}

func (heldLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

type harness struct {
	ledger *ledger.Ledger
	orders *orders.Store
	price  *oracle.Static
	sink   *recorder
}

func newHarness() *harness {
	h := &harness{
		ledger: ledger.New(nil, testLogger()),
		price:  oracle.NewStatic(260_000),
		sink:   &recorder{},
	}
	h.orders = orders.NewStore(h.ledger, nil, testLogger())
	return h
}

func (h *harness) engine(swapper swap.Executor, settler Settler, cfg Config) *Engine {
	return New(cfg, h.orders, oracle.NewGuard(h.price, time.Minute), swapper, settler, nil, h.sink, testLogger())
}

func (h *harness) sell(t *testing.T, owner common.Address, amount *big.Int, dest uint64) domain.Order {
	t.Helper()
	ctx := context.Background()
	_, err := h.ledger.Deposit(ctx, owner, domain.AssetZETA, amount)
	require.NoError(t, err)
	o, err := h.orders.Create(ctx, domain.CreateOrderParams{
		Owner: owner, Type: domain.OrderTypeSell, Amount: amount,
		PriceLow: 247_500, PriceHigh: 262_500, SlippageBps: 100, DestChainID: dest,
	})
	require.NoError(t, err)
	return o
}

func (h *harness) status(t *testing.T, id uint64) domain.OrderStatus {
	t.Helper()
	o, err := h.orders.Get(id)
	require.NoError(t, err)
	return o.Status
}

func TestSellExecutesAtTrigger(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	e := h.engine(swap.NewPaper(h.price, 0, nil, testLogger()), nil, Config{})

	res, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Triggered)
	assert.Equal(t, 1, res.Executed)

	bal := h.ledger.Balance(alice)
	assert.Equal(t, "260000", bal.AvailableUSDC.String())
	assert.Zero(t, bal.LockedZETA.Sign())
	assert.Zero(t, bal.AvailableZETA.Sign())
	assert.Equal(t, domain.OrderStatusFilled, h.status(t, o.ID))
	assert.Equal(t, 1, h.sink.count(domain.EventOrderExecuted))

	_, err = h.orders.ActiveOrder(alice)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPriceBelowTriggerWaits(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	h.price.Set(240_000, time.Now())
	sw := &fakeSwap{fn: func(domain.Asset, *big.Int, *big.Int) (*big.Int, error) { return nil, nil }}

	res, err := h.engine(sw, nil, Config{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Triggered)
	assert.Zero(t, sw.calls.Load())
	assert.Equal(t, domain.OrderStatusOpen, h.status(t, o.ID))
}

func TestAnomalousPriceIsSkipped(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	h.price.Set(300_000, time.Now())
	sw := &fakeSwap{fn: func(domain.Asset, *big.Int, *big.Int) (*big.Int, error) { return nil, nil }}

	res, err := h.engine(sw, nil, Config{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, sw.calls.Load())
	assert.Equal(t, domain.OrderStatusOpen, h.status(t, o.ID))
	assert.Equal(t, 1, h.sink.count(domain.EventTriggerSkipped))
}

func TestStalePriceSkipsPass(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	h.price.Set(260_000, time.Now().Add(-time.Hour))
	sw := &fakeSwap{fn: func(domain.Asset, *big.Int, *big.Int) (*big.Int, error) { return nil, nil }}

	_, err := h.engine(sw, nil, Config{}).RunPass(context.Background())
	require.ErrorIs(t, err, domain.ErrStaleOracleData)
	assert.Zero(t, sw.calls.Load())
	assert.Equal(t, domain.OrderStatusOpen, h.status(t, o.ID))
	assert.Equal(t, 1, h.sink.count(domain.EventTriggerSkipped))
}

func TestSwapFailureReopensOrder(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	sw := &fakeSwap{fn: func(domain.Asset, *big.Int, *big.Int) (*big.Int, error) {
		return nil, fmt.Errorf("router: %w: reverted", domain.ErrSwapExecutionFailed)
	}}
	e := h.engine(sw, nil, Config{RetryCooldown: time.Hour})

	res, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.OrderStatusOpen, h.status(t, o.ID))
	assert.Equal(t, 0, domain.OneZETA.Cmp(h.ledger.Balance(alice).LockedZETA))
	assert.Equal(t, 1, h.sink.count(domain.EventOrderExecutionFailed))

	res, err = e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, int64(1), sw.calls.Load())

	// The order is still cancellable after a failed attempt.
	_, err = h.orders.Cancel(context.Background(), alice, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, domain.OneZETA.Cmp(h.ledger.Balance(alice).AvailableZETA))
}

func TestShortFillHaltsOrder(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	sw := &fakeSwap{fn: func(_ domain.Asset, _ *big.Int, minOut *big.Int) (*big.Int, error) {
		return new(big.Int).Sub(minOut, big.NewInt(1)), nil
	}}

	res, err := h.engine(sw, nil, Config{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Halted)
	assert.Equal(t, domain.OrderStatusHalted, h.status(t, o.ID))
	assert.Equal(t, 1, h.sink.count(domain.EventOrderHalted))
	assert.Equal(t, 0, domain.OneZETA.Cmp(h.ledger.Balance(alice).LockedZETA))
}

func TestPanicIsIsolated(t *testing.T) {
	h := newHarness()
	a := h.sell(t, alice, domain.OneZETA, 0)
	two := new(big.Int).Mul(domain.OneZETA, big.NewInt(2))
	b := h.sell(t, bob, two, 0)
	sw := &fakeSwap{fn: func(_ domain.Asset, amountIn *big.Int, _ *big.Int) (*big.Int, error) {
		if amountIn.Cmp(two) == 0 {
			panic("venue exploded")
		}
		return domain.SellProceeds(amountIn, 260_000), nil
	}}

	res, err := h.engine(sw, nil, Config{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.OrderStatusFilled, h.status(t, a.ID))
	assert.Equal(t, domain.OrderStatusHalted, h.status(t, b.ID))
}

func TestConcurrentPassesExecuteOnce(t *testing.T) {
	h := newHarness()
	var owners []common.Address
	for i := 1; i <= 20; i++ {
		owner := common.BigToAddress(big.NewInt(int64(1000 + i)))
		owners = append(owners, owner)
		h.sell(t, owner, domain.OneZETA, 0)
	}
	sw := &fakeSwap{fn: func(_ domain.Asset, amountIn *big.Int, _ *big.Int) (*big.Int, error) {
		return domain.SellProceeds(amountIn, 260_000), nil
	}}
	e := h.engine(sw, nil, Config{Concurrency: 8})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.RunPass(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(20), sw.calls.Load())
	assert.Equal(t, 20, h.sink.count(domain.EventOrderExecuted))
	for _, owner := range owners {
		bal := h.ledger.Balance(owner)
		assert.Equal(t, "260000", bal.AvailableUSDC.String())
		assert.Zero(t, bal.Total(domain.AssetZETA).Sign())
	}
	assert.Zero(t, h.orders.ActiveCount())
}

func TestCancelBeforeClaimWins(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	sw := &fakeSwap{fn: func(_ domain.Asset, amountIn *big.Int, _ *big.Int) (*big.Int, error) {
		return domain.SellProceeds(amountIn, 260_000), nil
	}}
	_, err := h.orders.Cancel(context.Background(), alice, o.ID)
	require.NoError(t, err)

	res, err := h.engine(sw, nil, Config{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Evaluated)
	assert.Zero(t, sw.calls.Load())
	assert.Equal(t, 0, domain.OneZETA.Cmp(h.ledger.Balance(alice).AvailableZETA))
}

func TestHeldLockSkipsOrder(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, 0)
	sw := &fakeSwap{fn: func(domain.Asset, *big.Int, *big.Int) (*big.Int, error) { return nil, nil }}
	e := New(Config{}, h.orders, oracle.NewGuard(h.price, time.Minute), sw, nil, heldLocks{}, h.sink, testLogger())

	res, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, sw.calls.Load())
	assert.Equal(t, domain.OrderStatusOpen, h.status(t, o.ID))
}

func newMessenger(t *testing.T, h *harness, balance int64) (*messenger.Messenger, *messenger.MemoryGateway) {
	t.Helper()
	reg := messenger.NewRegistry(nil)
	require.NoError(t, reg.Register(context.Background(), destChain, common.HexToAddress("0x000000000000000000000000000000000000ba5e")))
	reserve := messenger.NewStaticReserve()
	reserve.Fund(destChain, big.NewInt(balance), big.NewInt(balance))
	gw := &messenger.MemoryGateway{}
	m := messenger.New(messenger.Config{
		GasAsset: domain.AssetZETA,
		Fees:     map[uint64]*big.Int{destChain: big.NewInt(500)},
	}, reg, reserve, gw, h.ledger, h.orders, nil, h.sink, testLogger())
	return m, gw
}

func TestInsufficientGasReserveReopensOrder(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, destChain)
	m, gw := newMessenger(t, h, 100)
	sw := &fakeSwap{fn: func(domain.Asset, *big.Int, *big.Int) (*big.Int, error) { return nil, nil }}

	res, err := h.engine(sw, m, Config{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, sw.calls.Load())
	assert.Empty(t, gw.Sent())
	assert.Equal(t, domain.OrderStatusOpen, h.status(t, o.ID))
	assert.Equal(t, 0, domain.OneZETA.Cmp(h.ledger.Balance(alice).LockedZETA))
	assert.Empty(t, m.Tickets(domain.TicketPending))
}

func TestGasReserveCoversOneOfTwoConcurrentOrders(t *testing.T) {
	h := newHarness()
	a := h.sell(t, alice, domain.OneZETA, destChain)
	b := h.sell(t, bob, domain.OneZETA, destChain)
	m, gw := newMessenger(t, h, 500)
	sw := &fakeSwap{fn: func(_ domain.Asset, amountIn *big.Int, _ *big.Int) (*big.Int, error) {
		time.Sleep(20 * time.Millisecond)
		return domain.SellProceeds(amountIn, 260_000), nil
	}}

	res, err := h.engine(sw, m, Config{Concurrency: 2}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(1), sw.calls.Load(), "the order without a fee never swaps")
	require.Len(t, gw.Sent(), 1)
	assert.Len(t, m.Tickets(domain.TicketPending), 1)
	assert.Empty(t, m.Tickets(domain.TicketFailed))

	var settling, open int
	for _, o := range []domain.Order{a, b} {
		switch h.status(t, o.ID) {
		case domain.OrderStatusSettling:
			settling++
		case domain.OrderStatusOpen:
			open++
			bal := h.ledger.Balance(o.Owner)
			assert.Equal(t, 0, domain.OneZETA.Cmp(bal.LockedZETA))
			assert.Zero(t, bal.AvailableUSDC.Sign())
		}
	}
	assert.Equal(t, 1, settling)
	assert.Equal(t, 1, open)
	assert.Equal(t, 1, h.sink.count(domain.EventOrderExecutionFailed))
}

func TestFailedSwapReleasesHeldFee(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, destChain)
	m, gw := newMessenger(t, h, 500)
	sw := &fakeSwap{fn: func(domain.Asset, *big.Int, *big.Int) (*big.Int, error) {
		return nil, fmt.Errorf("%w: pool paused", domain.ErrSwapExecutionFailed)
	}}

	res, err := h.engine(sw, m, Config{}).RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, domain.OrderStatusOpen, h.status(t, o.ID))
	assert.Empty(t, gw.Sent())

	_, err = m.Reserve(context.Background(), o.ID+1, destChain)
	assert.NoError(t, err, "fee hold was dropped with the release")
}

func TestCrossChainOrderDispatchesSettlement(t *testing.T) {
	h := newHarness()
	o := h.sell(t, alice, domain.OneZETA, destChain)
	m, gw := newMessenger(t, h, 10_000)
	e := h.engine(swap.NewPaper(h.price, 0, nil, testLogger()), m, Config{})

	res, err := e.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, domain.OrderStatusSettling, h.status(t, o.ID))
	require.Len(t, gw.Sent(), 1)

	bal := h.ledger.Balance(alice)
	assert.Zero(t, bal.AvailableUSDC.Sign())
	assert.Zero(t, bal.LockedZETA.Sign())

	tk, err := m.Ticket(o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPending, tk.Status)
	assert.Equal(t, "260000", tk.EscrowAmount.String())
	assert.Equal(t, 1, e.Status().PendingTickets)
}

func TestStatusReportsLastPass(t *testing.T) {
	h := newHarness()
	h.sell(t, alice, domain.OneZETA, 0)
	h.price.Set(240_000, time.Now())
	e := h.engine(swap.NewPaper(h.price, 0, nil, testLogger()), nil, Config{Mode: "engine"})

	_, err := e.RunPass(context.Background())
	require.NoError(t, err)
	st := e.Status()
	assert.Equal(t, "engine", st.Mode)
	assert.Equal(t, 1, st.ActiveOrders)
	assert.Equal(t, int64(240_000), st.LastPrice)
	assert.False(t, st.LastPassAt.IsZero())
}

func TestCooldownExpires(t *testing.T) {
	c := NewCooldown(time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }
	c.Mark(7)
	assert.True(t, c.Cooling(7))
	now = now.Add(2 * time.Minute)
	assert.False(t, c.Cooling(7))
	c.Cleanup()
	assert.Empty(t, c.until)
}
