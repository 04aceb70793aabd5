package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AccountBalance holds the available and locked funds of one account.
// All amounts are non-negative fixed-point integers.
type AccountBalance struct {
	Account       common.Address `json:"account"`
	AvailableZETA *big.Int       `json:"available_zeta"`
	LockedZETA    *big.Int       `json:"locked_zeta"`
	AvailableUSDC *big.Int       `json:"available_usdc"`
	LockedUSDC    *big.Int       `json:"locked_usdc"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewAccountBalance returns a zeroed balance for addr.
func NewAccountBalance(addr common.Address) AccountBalance {
	return AccountBalance{
		Account:       addr,
		AvailableZETA: new(big.Int),
		LockedZETA:    new(big.Int),
		AvailableUSDC: new(big.Int),
		LockedUSDC:    new(big.Int),
	}
}

// Clone returns a deep copy.
func (b AccountBalance) Clone() AccountBalance {
	return AccountBalance{
		Account:       b.Account,
		AvailableZETA: CopyAmount(b.AvailableZETA),
		LockedZETA:    CopyAmount(b.LockedZETA),
		AvailableUSDC: CopyAmount(b.AvailableUSDC),
		LockedUSDC:    CopyAmount(b.LockedUSDC),
		UpdatedAt:     b.UpdatedAt,
	}
}

// Available returns the mutable available bucket for asset.
func (b *AccountBalance) Available(asset Asset) *big.Int {
	if asset == AssetZETA {
		return b.AvailableZETA
	}
	return b.AvailableUSDC
}

// Locked returns the mutable locked bucket for asset.
func (b *AccountBalance) Locked(asset Asset) *big.Int {
	if asset == AssetZETA {
		return b.LockedZETA
	}
	return b.LockedUSDC
}

// Total returns available + locked for asset.
func (b AccountBalance) Total(asset Asset) *big.Int {
	return new(big.Int).Add(b.Available(asset), b.Locked(asset))
}
