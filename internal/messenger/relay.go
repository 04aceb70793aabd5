package messenger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Receiver accepts inbound messages.
type Receiver interface {
	Receive(ctx context.Context, msg domain.InboundMessage) error
}

// Sweeper periodically fails timed-out tickets.
type Sweeper struct {
	m        *Messenger
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper.
func NewSweeper(m *Messenger, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{m: m, interval: interval, logger: logger.With(slog.String("component", "ticket_sweeper"))}
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("ticket sweeper started", slog.Duration("interval", s.interval))
	defer s.logger.Info("ticket sweeper stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.m.Sweep(ctx); n > 0 {
				s.logger.Warn("settlement tickets timed out", slog.Int("count", n))
			}
		}
	}
}

// InboundRelay drains the inbound stream into a Receiver.
type InboundRelay struct {
	bus      domain.SignalBus
	receiver Receiver
	batch    int
	block    time.Duration
	logger   *slog.Logger
}

// NewInboundRelay creates an InboundRelay.
func NewInboundRelay(bus domain.SignalBus, receiver Receiver, logger *slog.Logger) *InboundRelay {
	return &InboundRelay{
		bus:      bus,
		receiver: receiver,
		batch:    50,
		block:    2 * time.Second,
		logger:   logger.With(slog.String("component", "inbound_relay")),
	}
}

// Run reads from the start of the stream; already-resolved callbacks are
// no-ops, so replaying history after a restart is safe.
func (r *InboundRelay) Run(ctx context.Context) error {
	r.logger.Info("inbound relay started")
	defer r.logger.Info("inbound relay stopped")

	lastID := "0-0"
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := r.bus.StreamRead(ctx, InboundStream, lastID, r.batch, r.block)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("inbound stream read failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		for _, sm := range msgs {
			lastID = sm.ID
			r.handle(ctx, sm)
		}
	}
}

func (r *InboundRelay) handle(ctx context.Context, sm domain.StreamMessage) {
	var msg domain.InboundMessage
	if err := json.Unmarshal(sm.Payload, &msg); err != nil {
		r.logger.Warn("inbound message undecodable", slog.String("id", sm.ID), slog.String("error", err.Error()))
		return
	}
	if err := r.receiver.Receive(ctx, msg); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrUnauthorized) {
			level = slog.LevelError
		}
		r.logger.Log(ctx, level, "inbound message rejected",
			slog.String("id", sm.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Loopback stands in for the remote counterpart in paper mode: every
// dispatched settlement is acknowledged after a delay, as if the second chain
// had executed it.
type Loopback struct {
	registry *Registry
	delay    time.Duration
	receiver Receiver
	logger   *slog.Logger
}

// NewLoopback creates a Loopback. Attach must be called before use.
func NewLoopback(registry *Registry, delay time.Duration, logger *slog.Logger) *Loopback {
	return &Loopback{registry: registry, delay: delay, logger: logger.With(slog.String("component", "loopback_gateway"))}
}

// Attach sets the messenger that receives the acknowledgements.
func (l *Loopback) Attach(r Receiver) {
	l.receiver = r
}

// Dispatch implements Gateway.
func (l *Loopback) Dispatch(_ context.Context, msg domain.OutboundMessage) error {
	p, err := DecodeSettle(msg.Payload)
	if err != nil {
		return err
	}
	cb, err := EncodeCallback(Callback{
		OrderID:     p.OrderID,
		PayloadHash: PayloadHash(msg.Payload),
		Status:      domain.CallbackSuccess,
	})
	if err != nil {
		return err
	}
	origin, _ := l.registry.Lookup(msg.DestinationChainID)
	in := domain.InboundMessage{
		OriginChainID: msg.DestinationChainID,
		OriginAddress: origin,
		Payload:       cb,
	}
	time.AfterFunc(l.delay, func() {
		if err := l.receiver.Receive(context.Background(), in); err != nil {
			l.logger.Warn("loopback ack rejected", slog.Uint64("order_id", p.OrderID), slog.String("error", err.Error()))
		}
	})
	return nil
}

var _ Gateway = (*Loopback)(nil)
