package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TicketStatus is the lifecycle state of a cross-chain settlement ticket.
type TicketStatus string

const (
	TicketPending TicketStatus = "PENDING"
	TicketAcked   TicketStatus = "ACKED"
	TicketFailed  TicketStatus = "FAILED"
)

// SettlementTicket correlates an executed order with its outbound message.
type SettlementTicket struct {
	OrderID          uint64         `json:"order_id"`
	Owner            common.Address `json:"owner"`
	DestinationChain uint64         `json:"destination_chain"`
	PayloadHash      common.Hash    `json:"payload_hash"`
	Status           TicketStatus   `json:"status"`
	// Escrow holds the proceeds returned to the owner if settlement fails.
	EscrowAsset  Asset      `json:"escrow_asset"`
	EscrowAmount *big.Int   `json:"escrow_amount"`
	GasFee       *big.Int   `json:"gas_fee"`
	FailReason   string     `json:"fail_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at,omitempty"`
}

// Clone returns a deep copy.
func (t SettlementTicket) Clone() SettlementTicket {
	c := t
	c.EscrowAmount = CopyAmount(t.EscrowAmount)
	c.GasFee = CopyAmount(t.GasFee)
	if t.ResolvedAt != nil {
		r := *t.ResolvedAt
		c.ResolvedAt = &r
	}
	return c
}

// CallbackStatus is the outcome reported by the destination chain.
type CallbackStatus uint8

const (
	CallbackSuccess CallbackStatus = 1
	CallbackFailure CallbackStatus = 2
)

// InboundMessage is what the gateway transport delivers on arrival.
type InboundMessage struct {
	OriginChainID uint64         `json:"origin_chain_id"`
	OriginAddress common.Address `json:"origin_address"`
	Payload       []byte         `json:"payload"`
	// Signature is an optional relayer signature over keccak256(Payload).
	Signature []byte `json:"signature,omitempty"`
}

// OutboundMessage is handed to the gateway transport for dispatch.
type OutboundMessage struct {
	DestinationChainID uint64         `json:"destination_chain_id"`
	DestinationAddress common.Address `json:"destination_address"`
	Payload            []byte         `json:"payload"`
	GasAsset           Asset          `json:"gas_asset"`
	GasAmount          *big.Int       `json:"gas_amount"`
}
