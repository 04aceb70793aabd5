package trigger

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

func sellOrder() domain.Order {
	return domain.Order{
		Type:        domain.OrderTypeSell,
		Amount:      new(big.Int).Set(domain.OneZETA),
		LockedAsset: domain.AssetZETA,
		LockedAmt:   new(big.Int).Set(domain.OneZETA),
		PriceLow:    247_500,
		PriceHigh:   262_500,
		SlippageBps: 100,
	}
}

func buyOrder() domain.Order {
	o := sellOrder()
	o.Type = domain.OrderTypeBuy
	o.LockedAsset = domain.AssetUSDC
	o.LockedAmt = domain.BuyNotional(o.Amount, o.PriceHigh)
	return o
}

func TestSellBands(t *testing.T) {
	o := sellOrder()

	assert.Equal(t, OutcomeWait, Evaluate(o, 247_499).Outcome)
	assert.True(t, ShouldTrigger(o, 247_500), "lower bound is inclusive")
	assert.True(t, ShouldTrigger(o, 260_000))
	assert.True(t, ShouldTrigger(o, 262_500))
	// Ceiling = 262500 * 1.01 = 265125.
	assert.True(t, ShouldTrigger(o, 265_125), "sanity ceiling is inclusive")
	assert.Equal(t, OutcomeAnomaly, Evaluate(o, 265_126).Outcome)
	assert.Equal(t, OutcomeAnomaly, Evaluate(o, 0).Outcome)
}

func TestBuyBands(t *testing.T) {
	o := buyOrder()

	assert.Equal(t, OutcomeWait, Evaluate(o, 262_501).Outcome)
	assert.True(t, ShouldTrigger(o, 262_500), "upper bound is inclusive")
	assert.True(t, ShouldTrigger(o, 247_500))
	// Floor = 247500 * 0.99 = 245025.
	assert.True(t, ShouldTrigger(o, 245_025))
	assert.Equal(t, OutcomeAnomaly, Evaluate(o, 245_024).Outcome)
}

func TestMinAmountOutSell(t *testing.T) {
	o := sellOrder()
	d := Evaluate(o, 260_000)
	assert.Equal(t, OutcomeTrigger, d.Outcome)
	// 0.26 USDC less 1%.
	assert.Equal(t, int64(257_400), d.MinOut.Int64())
}

func TestMinAmountOutBuy(t *testing.T) {
	o := buyOrder()
	// Locked 0.2625 USDC; at 0.25 that buys 1.05 ZETA, less 1%.
	got := MinAmountOut(o, 250_000)
	want, _ := new(big.Int).SetString("1039500000000000000", 10)
	assert.Equal(t, 0, got.Cmp(want), got.String())
	assert.True(t, got.Cmp(domain.OneZETA) > 0)
}

func TestZeroSlippageMeansExactBound(t *testing.T) {
	o := sellOrder()
	o.SlippageBps = 0
	assert.True(t, ShouldTrigger(o, 262_500))
	assert.Equal(t, OutcomeAnomaly, Evaluate(o, 262_501).Outcome)
	assert.Equal(t, int64(262_500), MinAmountOut(o, 262_500).Int64())
}

func TestCeilingAtMaxPriceStaysPositive(t *testing.T) {
	o := sellOrder()
	o.PriceHigh = domain.MaxPrice
	o.PriceLow = domain.MaxPrice
	o.SlippageBps = domain.MaxSlippageBps

	assert.Equal(t, 2*domain.MaxPrice, SellCeiling(o))
	assert.True(t, ShouldTrigger(o, domain.MaxPrice))
	assert.True(t, ShouldTrigger(o, 2*domain.MaxPrice))
}
