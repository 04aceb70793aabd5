package domain

import (
	"fmt"
	"math/big"
	"strings"
)

// Asset identifies one of the two traded assets.
type Asset string

const (
	AssetZETA Asset = "ZETA"
	AssetUSDC Asset = "USDC"
)

// Decimals returns the fixed-point scale of the asset.
func (a Asset) Decimals() int32 {
	switch a {
	case AssetZETA:
		return 18
	case AssetUSDC:
		return 6
	default:
		return 0
	}
}

// Valid reports whether a is a known asset.
func (a Asset) Valid() bool {
	return a == AssetZETA || a == AssetUSDC
}

// Opposite returns the other side of the pair.
func (a Asset) Opposite() Asset {
	if a == AssetZETA {
		return AssetUSDC
	}
	return AssetZETA
}

// ParseAsset accepts "zeta"/"usdc" in any case.
func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if !a.Valid() {
		return "", fmt.Errorf("unknown asset %q", s)
	}
	return a, nil
}

// PriceScale is the fixed-point scale of prices (USDC per ZETA, 6 decimals).
const PriceScale = 1_000_000

// BpsDenominator is 100% expressed in basis points.
const BpsDenominator = 10_000

var (
	// OneZETA is 1 ZETA in wei.
	OneZETA = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	// OneUSDC is 1 USDC in base units.
	OneUSDC = big.NewInt(1_000_000)
)

// CopyAmount returns a defensive copy of v; nil becomes zero.
func CopyAmount(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

// ParseAmount parses a base-10 fixed-point integer string.
func ParseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidAmount, s)
	}
	return v, nil
}
