package app

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

	"github.com/alanyoungcy/zetatrigger/internal/config"
	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func paperConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Swap.PaperFeeBps = 0
	cfg.Messenger.LoopbackDelay.Duration = 0
	cfg.Messenger.Counterparts = []config.CounterpartConfig{
		{ChainID: 7001, Address: "0x00000000000000000000000000000000000c0ffe", Fee: "0.01"},
	}
	return &cfg
}

func sell(t *testing.T, c *Components, dest uint64) domain.Order {
	t.Helper()
	ctx := context.Background()
	_, err := c.Ledger.Deposit(ctx, alice, domain.AssetZETA, domain.OneZETA)
	require.NoError(t, err)
	o, err := c.Orders.Create(ctx, domain.CreateOrderParams{
		Owner: alice, Type: domain.OrderTypeSell, Amount: domain.OneZETA,
		PriceLow: 250_000, PriceHigh: 270_000, SlippageBps: 100, DestChainID: dest,
	})
	require.NoError(t, err)
	return o
}

func TestBuildPaperStackFillsLocalOrder(t *testing.T) {
	c, err := Build(context.Background(), paperConfig(), &Dependencies{}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, c.Archiver)

	o := sell(t, c, 0)
	res, err := c.Engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(260_000), res.Price)
	assert.Equal(t, 1, res.Executed)

	got, err := c.Orders.Get(o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
	assert.Equal(t, "260000", c.Ledger.Balance(alice).AvailableUSDC.String())
}

func TestBuildLoopbackAcknowledgesSettlement(t *testing.T) {
	c, err := Build(context.Background(), paperConfig(), &Dependencies{}, testLogger())
	require.NoError(t, err)
	require.NotNil(t, c.Messenger)

	o := sell(t, c, 7001)
	res, err := c.Engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)

	require.Eventually(t, func() bool {
		got, err := c.Orders.Get(o.ID)
		return err == nil && got.Status == domain.OrderStatusSettled
	}, 2*time.Second, 10*time.Millisecond)

	tk, err := c.Messenger.Ticket(o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketAcked, tk.Status)
}

type memOrders struct {
	mu   sync.Mutex
	rows map[uint64]domain.Order
}

func (m *memOrders) SaveOrder(_ context.Context, o domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[o.ID] = o.Clone()
	return nil
}

func (m *memOrders) LoadOrders(context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Order, 0, len(m.rows))
	for _, o := range m.rows {
		out = append(out, o.Clone())
	}
	return out, nil
}

func (m *memOrders) NextOrderID(context.Context) (uint64, error) { return 1, nil }

func (m *memOrders) ListTerminalBefore(context.Context, time.Time, int) ([]domain.Order, error) {
	return nil, nil
}

func (m *memOrders) DeleteOrders(context.Context, []uint64) error { return nil }

type memTickets struct {
	mu   sync.Mutex
	rows map[uint64]domain.SettlementTicket
}

func (m *memTickets) SaveTicket(_ context.Context, tk domain.SettlementTicket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[tk.OrderID] = tk.Clone()
	return nil
}

func (m *memTickets) LoadTickets(context.Context) ([]domain.SettlementTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SettlementTicket, 0, len(m.rows))
	for _, tk := range m.rows {
		out = append(out, tk.Clone())
	}
	return out, nil
}

func (m *memTickets) ListResolvedBefore(context.Context, time.Time, int) ([]domain.SettlementTicket, error) {
	return nil, nil
}

func (m *memTickets) DeleteTickets(context.Context, []uint64) error { return nil }

func TestBuildRedispatchesSettlementWithoutTicket(t *testing.T) {
	// Journal state after a crash between escrow and dispatch.
	now := time.Now().UTC()
	journal := &memOrders{rows: map[uint64]domain.Order{
		5: {
			ID: 5, Owner: alice, Recipient: alice, Type: domain.OrderTypeSell,
			Amount: domain.OneZETA, PriceLow: 250_000, PriceHigh: 270_000, SlippageBps: 100,
			LockedAsset: domain.AssetZETA, LockedAmt: domain.OneZETA,
			Status: domain.OrderStatusSettling, DestChainID: 7001,
			Proceeds: big.NewInt(260_000), ExecPrice: 260_000,
			CreatedAt: now, UpdatedAt: now, ExecutedAt: &now,
		},
	}}
	tickets := &memTickets{rows: map[uint64]domain.SettlementTicket{}}

	c, err := Build(context.Background(), paperConfig(), &Dependencies{OrderStore: journal, TicketStore: tickets}, testLogger())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		got, err := c.Orders.Get(5)
		return err == nil && got.Status == domain.OrderStatusSettled
	}, 2*time.Second, 10*time.Millisecond)

	tk, err := c.Messenger.Ticket(5)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketAcked, tk.Status)
	assert.Equal(t, "260000", tk.EscrowAmount.String())
	assert.Empty(t, c.Orders.ListSettling())
}

func TestBuildWithoutSettlement(t *testing.T) {
	cfg := paperConfig()
	cfg.Messenger.Enabled = false
	c, err := Build(context.Background(), cfg, &Dependencies{}, testLogger())
	require.NoError(t, err)
	assert.Nil(t, c.Messenger)
	assert.Nil(t, c.Registry)

	sell(t, c, 0)
	res, err := c.Engine.RunPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)
}

func TestBuildRejectsBadStaticPrice(t *testing.T) {
	cfg := paperConfig()
	cfg.Oracle.StaticPrice = "cheap"
	_, err := Build(context.Background(), cfg, &Dependencies{}, testLogger())
	require.Error(t, err)
}

func TestWireWithoutBackends(t *testing.T) {
	cfg := paperConfig()
	deps, cleanup, err := Wire(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer cleanup()

	assert.Nil(t, deps.OrderStore)
	assert.Nil(t, deps.SignalBus)
	assert.Nil(t, deps.Chain)
	assert.False(t, deps.Notifier.Enabled())
}
