// Package events fans engine events out to the bus, the audit log, operator
// alerts and in-process subscribers.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Channel is the bus channel events are published on.
const Channel = "events"

// Notifier receives events for operator alerts.
type Notifier interface {
	NotifyEvent(ctx context.Context, e domain.Event) error
}

// Publisher is a buffered domain.EventSink. Emit never blocks; Run delivers.
type Publisher struct {
	queue    chan domain.Event
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier Notifier
	logger   *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
}

var _ domain.EventSink = (*Publisher)(nil)

// NewPublisher creates a Publisher. bus, audit and notifier may be nil.
func NewPublisher(buffer int, bus domain.SignalBus, audit domain.AuditStore, notifier Notifier, logger *slog.Logger) *Publisher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Publisher{
		queue:    make(chan domain.Event, buffer),
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "events")),
		subs:     make(map[int]chan domain.Event),
	}
}

// Emit queues e. When the queue is full the event is dropped with a warning.
func (p *Publisher) Emit(e domain.Event) {
	p.logger.Info("event",
		slog.String("type", string(e.Type)),
		slog.Uint64("order_id", e.OrderID),
		slog.String("account", e.Account),
	)
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("event queue full, dropping", slog.String("type", string(e.Type)), slog.String("id", e.ID))
	}
}

// Subscribe returns a channel that receives every delivered event. Slow
// subscribers miss events rather than stall delivery.
func (p *Publisher) Subscribe(buffer int) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, buffer)
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
			close(ch)
		})
	}
}

// Run delivers queued events until ctx is cancelled, then drains the queue.
func (p *Publisher) Run(ctx context.Context) error {
	p.logger.Info("publisher started")
	defer p.logger.Info("publisher stopped")
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return ctx.Err()
		case e := <-p.queue:
			p.deliver(ctx, e)
		}
	}
}

func (p *Publisher) drain() {
	ctx := context.Background()
	for {
		select {
		case e := <-p.queue:
			p.deliver(ctx, e)
		default:
			return
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, e domain.Event) {
	if p.bus != nil {
		if data, err := json.Marshal(e); err == nil {
			if err := p.bus.Publish(ctx, Channel, data); err != nil {
				p.logger.Warn("bus publish failed", slog.String("error", err.Error()))
			}
		}
	}
	if p.audit != nil {
		detail := make(map[string]any, len(e.Detail)+2)
		for k, v := range e.Detail {
			detail[k] = v
		}
		detail["event_id"] = e.ID
		if e.Account != "" {
			detail["account"] = e.Account
		}
		if err := p.audit.Log(ctx, string(e.Type), e.OrderID, detail); err != nil {
			p.logger.Warn("audit log failed", slog.String("error", err.Error()))
		}
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyEvent(ctx, e); err != nil {
			p.logger.Warn("notify failed", slog.String("error", err.Error()))
		}
	}

	p.mu.Lock()
	for _, ch := range p.subs {
		select {
		case ch <- e:
		default:
		}
	}
	p.mu.Unlock()
}
