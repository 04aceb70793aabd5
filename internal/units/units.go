// Package units converts between fixed-point integer amounts and their
// human-readable decimal form.
package units

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// FormatAmount renders a fixed-point amount of asset as a decimal string.
func FormatAmount(amount *big.Int, asset domain.Asset) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -asset.Decimals()).String()
}

// ParseAmount converts a decimal string to fixed-point units of asset.
// Digits beyond the asset's precision are rejected rather than rounded.
func ParseAmount(s string, asset domain.Asset) (*big.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidAmount, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: negative amount %q", domain.ErrInvalidAmount, s)
	}
	scaled := d.Shift(asset.Decimals())
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q exceeds %d decimals", domain.ErrInvalidAmount, s, asset.Decimals())
	}
	return scaled.BigInt(), nil
}

// FormatPrice renders price ticks as a decimal string.
func FormatPrice(ticks int64) string {
	return decimal.New(ticks, -6).String()
}

// ParsePrice converts a decimal price like "0.2625" to ticks.
func ParsePrice(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidRange, err)
	}
	scaled := d.Shift(6)
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, fmt.Errorf("%w: price %q exceeds 6 decimals", domain.ErrInvalidRange, s)
	}
	return scaled.IntPart(), nil
}

// PriceFromFeed rescales a raw feed answer with feedDecimals to ticks.
func PriceFromFeed(answer *big.Int, feedDecimals uint8) int64 {
	return decimal.NewFromBigInt(answer, -int32(feedDecimals)).Shift(6).IntPart()
}
