package messenger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Gateway is the outbound side of the cross-chain transport. Dispatch hands a
// message over and returns; delivery is confirmed only by a callback.
type Gateway interface {
	Dispatch(ctx context.Context, msg domain.OutboundMessage) error
}

// OutboundStream names the stream holding messages for chainID.
func OutboundStream(chainID uint64) string {
	return "gateway:outbound:" + strconv.FormatUint(chainID, 10)
}

// InboundStream is the stream relayers append inbound messages to.
const InboundStream = "gateway:inbound"

// StreamGateway appends outbound messages to a durable bus stream that an
// external relayer drains.
type StreamGateway struct {
	bus domain.SignalBus
}

// NewStreamGateway creates a StreamGateway.
func NewStreamGateway(bus domain.SignalBus) *StreamGateway {
	return &StreamGateway{bus: bus}
}

// Dispatch implements Gateway.
func (g *StreamGateway) Dispatch(ctx context.Context, msg domain.OutboundMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("messenger: marshal outbound: %w", err)
	}
	if err := g.bus.StreamAppend(ctx, OutboundStream(msg.DestinationChainID), b); err != nil {
		return fmt.Errorf("messenger: dispatch: %w", err)
	}
	return nil
}

// MemoryGateway records dispatched messages.
type MemoryGateway struct {
	mu   sync.Mutex
	sent []domain.OutboundMessage
	Err  error
}

// Dispatch implements Gateway.
func (g *MemoryGateway) Dispatch(_ context.Context, msg domain.OutboundMessage) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return g.Err
	}
	g.sent = append(g.sent, msg)
	return nil
}

// Sent returns a copy of everything dispatched so far.
func (g *MemoryGateway) Sent() []domain.OutboundMessage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]domain.OutboundMessage(nil), g.sent...)
}

var (
	_ Gateway = (*StreamGateway)(nil)
	_ Gateway = (*MemoryGateway)(nil)
)
