package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published == nil {
		b.published = make(map[string][][]byte)
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) StreamAppend(context.Context, string, []byte) error { return nil }

func (b *memBus) StreamRead(context.Context, string, string, int, time.Duration) ([]domain.StreamMessage, error) {
	return nil, nil
}

func (b *memBus) count(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published[channel])
}

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (a *memAudit) Log(_ context.Context, event string, orderID uint64, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, domain.AuditEntry{Event: event, OrderID: orderID, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

type memNotifier struct {
	mu   sync.Mutex
	seen []domain.EventType
}

func (n *memNotifier) NotifyEvent(_ context.Context, e domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.seen = append(n.seen, e.Type)
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPublisherFansOut(t *testing.T) {
	bus := &memBus{}
	audit := &memAudit{}
	notifier := &memNotifier{}
	p := NewPublisher(16, bus, audit, notifier, testLogger())

	sub, cancelSub := p.Subscribe(4)
	defer cancelSub()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	p.Emit(domain.NewEvent(domain.EventOrderExecuted, 3, "0xabc", map[string]string{"price": "260000"}))

	select {
	case e := <-sub:
		assert.Equal(t, domain.EventOrderExecuted, e.Type)
		assert.Equal(t, uint64(3), e.OrderID)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive event")
	}

	cancel()
	<-done

	require.Equal(t, 1, bus.count(Channel))
	var decoded domain.Event
	require.NoError(t, json.Unmarshal(bus.published[Channel][0], &decoded))
	assert.Equal(t, "260000", decoded.Detail["price"])

	entries, _ := audit.List(context.Background(), domain.ListOpts{})
	require.Len(t, entries, 1)
	assert.Equal(t, "OrderExecuted", entries[0].Event)
	assert.Equal(t, "0xabc", entries[0].Detail["account"])
	assert.Equal(t, []domain.EventType{domain.EventOrderExecuted}, notifier.seen)
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(1, nil, nil, nil, testLogger())
	p.Emit(domain.NewEvent(domain.EventDeposit, 0, "a", nil))
	p.Emit(domain.NewEvent(domain.EventDeposit, 0, "b", nil))
	assert.Len(t, p.queue, 1)
}

func TestPublisherDrainsOnShutdown(t *testing.T) {
	audit := &memAudit{}
	p := NewPublisher(8, nil, audit, nil, testLogger())
	p.Emit(domain.NewEvent(domain.EventDeposit, 0, "a", nil))
	p.Emit(domain.NewEvent(domain.EventWithdraw, 0, "a", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, p.Run(ctx), context.Canceled)

	entries, _ := audit.List(context.Background(), domain.ListOpts{})
	assert.Len(t, entries, 2)
}
