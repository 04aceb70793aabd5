package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names something the engine or the messenger did.
type EventType string

const (
	EventDeposit              EventType = "Deposit"
	EventWithdraw             EventType = "Withdraw"
	EventOrderCreated         EventType = "OrderCreated"
	EventOrderCancelled       EventType = "OrderCancelled"
	EventOrderExecuted        EventType = "OrderExecuted"
	EventOrderExecutionFailed EventType = "OrderExecutionFailed"
	EventOrderHalted          EventType = "OrderHalted"
	EventTriggerSkipped       EventType = "TriggerSkipped"
	EventSettlementDispatched EventType = "SettlementDispatched"
	EventSettlementAcked      EventType = "SettlementAcked"
	EventSettlementFailed     EventType = "SettlementFailed"
	EventCallbackRejected     EventType = "CallbackRejected"
)

// Event is one auditable fact emitted by the core.
type Event struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	OrderID   uint64            `json:"order_id,omitempty"`
	Account   string            `json:"account,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(t EventType, orderID uint64, account string, detail map[string]string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		OrderID:   orderID,
		Account:   account,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
}

// EventSink receives events. Implementations must not block for long.
type EventSink interface {
	Emit(e Event)
}

// EngineStatus is a summary of the service's current operational state.
type EngineStatus struct {
	Mode           string    `json:"mode"`
	UptimeSeconds  int64     `json:"uptime_seconds"`
	ActiveOrders   int       `json:"active_orders"`
	PendingTickets int       `json:"pending_tickets"`
	LastPassAt     time.Time `json:"last_pass_at"`
	LastPrice      int64     `json:"last_price"`
}
