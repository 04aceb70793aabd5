package handler

import (
	"math/big"
	"time"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Wire views render fixed-point amounts as base-10 strings so clients never
// round them through float64.

type balanceView struct {
	Account       string    `json:"account"`
	AvailableZETA string    `json:"available_zeta"`
	LockedZETA    string    `json:"locked_zeta"`
	AvailableUSDC string    `json:"available_usdc"`
	LockedUSDC    string    `json:"locked_usdc"`
	UpdatedAt     time.Time `json:"updated_at,omitzero"`
}

func newBalanceView(b domain.AccountBalance) balanceView {
	return balanceView{
		Account:       b.Account.Hex(),
		AvailableZETA: str(b.AvailableZETA),
		LockedZETA:    str(b.LockedZETA),
		AvailableUSDC: str(b.AvailableUSDC),
		LockedUSDC:    str(b.LockedUSDC),
		UpdatedAt:     b.UpdatedAt,
	}
}

type orderView struct {
	ID           uint64     `json:"id"`
	Owner        string     `json:"owner"`
	Type         string     `json:"type"`
	Amount       string     `json:"amount"`
	PriceLow     int64      `json:"price_low"`
	PriceHigh    int64      `json:"price_high"`
	SlippageBps  uint32     `json:"slippage_bps"`
	LockedAsset  string     `json:"locked_asset"`
	LockedAmount string     `json:"locked_amount"`
	Status       string     `json:"status"`
	DestChainID  uint64     `json:"dest_chain_id,omitempty"`
	Recipient    string     `json:"recipient,omitempty"`
	Proceeds     string     `json:"proceeds,omitempty"`
	ExecPrice    int64      `json:"exec_price,omitempty"`
	FailReason   string     `json:"fail_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	CancelledAt  *time.Time `json:"cancelled_at,omitempty"`
}

func newOrderView(o domain.Order) orderView {
	v := orderView{
		ID:           o.ID,
		Owner:        o.Owner.Hex(),
		Type:         string(o.Type),
		Amount:       str(o.Amount),
		PriceLow:     o.PriceLow,
		PriceHigh:    o.PriceHigh,
		SlippageBps:  o.SlippageBps,
		LockedAsset:  string(o.LockedAsset),
		LockedAmount: str(o.LockedAmt),
		Status:       string(o.Status),
		DestChainID:  o.DestChainID,
		ExecPrice:    o.ExecPrice,
		FailReason:   o.FailReason,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
		ExecutedAt:   o.ExecutedAt,
		CancelledAt:  o.CancelledAt,
	}
	if o.DestChainID != 0 {
		v.Recipient = o.Recipient.Hex()
	}
	if o.Proceeds != nil {
		v.Proceeds = o.Proceeds.String()
	}
	return v
}

func newOrderViews(list []domain.Order) []orderView {
	out := make([]orderView, 0, len(list))
	for _, o := range list {
		out = append(out, newOrderView(o))
	}
	return out
}

type ticketView struct {
	OrderID          uint64     `json:"order_id"`
	Owner            string     `json:"owner"`
	DestinationChain uint64     `json:"destination_chain"`
	PayloadHash      string     `json:"payload_hash"`
	Status           string     `json:"status"`
	EscrowAsset      string     `json:"escrow_asset"`
	EscrowAmount     string     `json:"escrow_amount"`
	GasFee           string     `json:"gas_fee"`
	FailReason       string     `json:"fail_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

func newTicketViews(list []domain.SettlementTicket) []ticketView {
	out := make([]ticketView, 0, len(list))
	for _, t := range list {
		out = append(out, ticketView{
			OrderID:          t.OrderID,
			Owner:            t.Owner.Hex(),
			DestinationChain: t.DestinationChain,
			PayloadHash:      t.PayloadHash.Hex(),
			Status:           string(t.Status),
			EscrowAsset:      string(t.EscrowAsset),
			EscrowAmount:     str(t.EscrowAmount),
			GasFee:           str(t.GasFee),
			FailReason:       t.FailReason,
			CreatedAt:        t.CreatedAt,
			ResolvedAt:       t.ResolvedAt,
		})
	}
	return out
}

func str(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
