package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// OrderType indicates whether the order buys or sells ZETA.
type OrderType string

const (
	OrderTypeBuy  OrderType = "BUY"
	OrderTypeSell OrderType = "SELL"
)

// Valid reports whether t is BUY or SELL.
func (t OrderType) Valid() bool {
	return t == OrderTypeBuy || t == OrderTypeSell
}

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusOpen             OrderStatus = "OPEN"
	OrderStatusExecuting        OrderStatus = "EXECUTING"
	OrderStatusFilled           OrderStatus = "FILLED"
	OrderStatusSettling         OrderStatus = "SETTLING"
	OrderStatusSettled          OrderStatus = "SETTLED"
	OrderStatusSettlementFailed OrderStatus = "SETTLEMENT_FAILED"
	OrderStatusCancelled        OrderStatus = "CANCELLED"
	OrderStatusHalted           OrderStatus = "HALTED"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusSettled, OrderStatusSettlementFailed,
		OrderStatusCancelled, OrderStatusHalted:
		return true
	}
	return false
}

// MaxSlippageBps bounds Order.SlippageBps.
const MaxSlippageBps = BpsDenominator

// MaxPrice bounds Order.PriceHigh at 1,000,000 USDC per ZETA so that band
// arithmetic in ticks stays within int64.
const MaxPrice int64 = 1_000_000 * PriceScale

// Order is one standing price-triggered trading intent.
type Order struct {
	ID          uint64         `json:"id"`
	Owner       common.Address `json:"owner"`
	Type        OrderType      `json:"type"`
	Amount      *big.Int       `json:"amount"`     // ZETA wei for both sides
	PriceLow    int64          `json:"price_low"`  // ticks, PriceScale
	PriceHigh   int64          `json:"price_high"` // ticks, PriceScale
	SlippageBps uint32         `json:"slippage_bps"`
	LockedAsset Asset          `json:"locked_asset"`
	LockedAmt   *big.Int       `json:"locked_amount"`
	Status      OrderStatus    `json:"status"`

	// DestChainID is non-zero when proceeds settle on a second chain.
	DestChainID uint64         `json:"dest_chain_id,omitempty"`
	Recipient   common.Address `json:"recipient,omitempty"`

	Proceeds    *big.Int   `json:"proceeds,omitempty"`
	ExecPrice   int64      `json:"exec_price,omitempty"`
	FailReason  string     `json:"fail_reason,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ExecutedAt  *time.Time `json:"executed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Active reports whether the order still holds locked funds.
func (o Order) Active() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusExecuting
}

// CrossChain reports whether settlement must be mirrored on another chain.
func (o Order) CrossChain() bool {
	return o.DestChainID != 0
}

// ProceedsAsset is the asset the swap produces.
func (o Order) ProceedsAsset() Asset {
	return o.LockedAsset.Opposite()
}

// Clone returns a deep copy.
func (o Order) Clone() Order {
	c := o
	c.Amount = CopyAmount(o.Amount)
	c.LockedAmt = CopyAmount(o.LockedAmt)
	if o.Proceeds != nil {
		c.Proceeds = CopyAmount(o.Proceeds)
	}
	if o.ExecutedAt != nil {
		t := *o.ExecutedAt
		c.ExecutedAt = &t
	}
	if o.CancelledAt != nil {
		t := *o.CancelledAt
		c.CancelledAt = &t
	}
	return c
}

// CreateOrderParams carries the caller-supplied fields of a new order.
type CreateOrderParams struct {
	Owner       common.Address
	Type        OrderType
	Amount      *big.Int
	PriceLow    int64
	PriceHigh   int64
	SlippageBps uint32
	DestChainID uint64
	Recipient   common.Address
}

// SellProceeds converts ZETA wei to USDC units at price ticks (floor).
func SellProceeds(amountWei *big.Int, price int64) *big.Int {
	out := new(big.Int).Mul(amountWei, big.NewInt(price))
	return out.Quo(out, OneZETA)
}

// BuyNotional is the USDC needed to buy amountWei at price ticks (ceil).
func BuyNotional(amountWei *big.Int, price int64) *big.Int {
	num := new(big.Int).Mul(amountWei, big.NewInt(price))
	q, r := new(big.Int).QuoRem(num, OneZETA, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// ZETAForUSDC converts USDC units to ZETA wei at price ticks (floor).
func ZETAForUSDC(usdc *big.Int, price int64) *big.Int {
	if price <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(usdc, OneZETA)
	return out.Quo(out, big.NewInt(price))
}
