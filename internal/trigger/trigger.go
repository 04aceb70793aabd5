// Package trigger decides whether an order fires at a given price.
//
// The band [PriceLow, PriceHigh] carries two meanings that are kept apart:
// one bound is the trigger and the other, widened by the slippage tolerance,
// is a sanity limit against anomalous feed values. For SELL the trigger is
// price >= PriceLow and the sanity ceiling is PriceHigh*(1+slippage). For BUY
// the trigger is price <= PriceHigh and the sanity floor is
// PriceLow*(1-slippage). All bounds are inclusive.
package trigger

import (
	"math/big"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Outcome classifies one evaluation.
type Outcome string

const (
	OutcomeTrigger Outcome = "trigger"
	OutcomeWait    Outcome = "wait"
	OutcomeAnomaly Outcome = "anomaly"
)

// Decision is the result of Evaluate.
type Decision struct {
	Outcome Outcome
	// MinOut is set when Outcome is OutcomeTrigger.
	MinOut *big.Int
}

// ShouldTrigger reports whether order fires at price.
func ShouldTrigger(order domain.Order, price int64) bool {
	return Evaluate(order, price).Outcome == OutcomeTrigger
}

// Evaluate classifies price against order's band.
func Evaluate(order domain.Order, price int64) Decision {
	if price <= 0 {
		return Decision{Outcome: OutcomeAnomaly}
	}
	switch order.Type {
	case domain.OrderTypeSell:
		if price < order.PriceLow {
			return Decision{Outcome: OutcomeWait}
		}
		if price > SellCeiling(order) {
			return Decision{Outcome: OutcomeAnomaly}
		}
	case domain.OrderTypeBuy:
		if price > order.PriceHigh {
			return Decision{Outcome: OutcomeWait}
		}
		if price < BuyFloor(order) {
			return Decision{Outcome: OutcomeAnomaly}
		}
	default:
		return Decision{Outcome: OutcomeAnomaly}
	}
	return Decision{Outcome: OutcomeTrigger, MinOut: MinAmountOut(order, price)}
}

// SellCeiling is the highest price a SELL order accepts as genuine.
func SellCeiling(order domain.Order) int64 {
	return order.PriceHigh * int64(domain.BpsDenominator+order.SlippageBps) / domain.BpsDenominator
}

// BuyFloor is the lowest price a BUY order accepts as genuine.
func BuyFloor(order domain.Order) int64 {
	bps := int64(order.SlippageBps)
	if bps > domain.BpsDenominator {
		bps = domain.BpsDenominator
	}
	return order.PriceLow * (domain.BpsDenominator - bps) / domain.BpsDenominator
}

// MinAmountOut is the least the swap may return for order at price:
// the expected output reduced by the order's slippage tolerance.
func MinAmountOut(order domain.Order, price int64) *big.Int {
	var expected *big.Int
	if order.Type == domain.OrderTypeSell {
		expected = domain.SellProceeds(order.LockedAmt, price)
	} else {
		expected = domain.ZETAForUSDC(order.LockedAmt, price)
	}
	return applySlippage(expected, order.SlippageBps)
}

func applySlippage(v *big.Int, bps uint32) *big.Int {
	keep := int64(domain.BpsDenominator) - int64(bps)
	if keep < 0 {
		keep = 0
	}
	out := new(big.Int).Mul(v, big.NewInt(keep))
	return out.Quo(out, big.NewInt(domain.BpsDenominator))
}
