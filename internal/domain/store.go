package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AccountStore persists account balances.
type AccountStore interface {
	SaveAccount(ctx context.Context, bal AccountBalance) error
	LoadAccounts(ctx context.Context) ([]AccountBalance, error)
}

// OrderStore persists orders and the next-order-id counter.
type OrderStore interface {
	SaveOrder(ctx context.Context, order Order) error
	LoadOrders(ctx context.Context) ([]Order, error)
	NextOrderID(ctx context.Context) (uint64, error)
	ListTerminalBefore(ctx context.Context, before time.Time, limit int) ([]Order, error)
	DeleteOrders(ctx context.Context, ids []uint64) error
}

// TicketStore persists cross-chain settlement tickets.
type TicketStore interface {
	SaveTicket(ctx context.Context, t SettlementTicket) error
	LoadTickets(ctx context.Context) ([]SettlementTicket, error)
	ListResolvedBefore(ctx context.Context, before time.Time, limit int) ([]SettlementTicket, error)
	DeleteTickets(ctx context.Context, orderIDs []uint64) error
}

// Counterpart is the paired contract registered for a destination chain.
type Counterpart struct {
	ChainID   uint64         `json:"chain_id"`
	Address   common.Address `json:"address"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// CounterpartStore persists the counterpart registry.
type CounterpartStore interface {
	Upsert(ctx context.Context, c Counterpart) error
	List(ctx context.Context) ([]Counterpart, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	OrderID   uint64
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, orderID uint64, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
