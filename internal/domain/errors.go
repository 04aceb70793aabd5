package domain

import "errors"

var (
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInvalidRange           = errors.New("invalid price range")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidSlippage        = errors.New("invalid slippage")
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrAlreadyInactive        = errors.New("order already inactive")
	ErrActiveOrderExists      = errors.New("account already has an active order")
	ErrStaleOracleData        = errors.New("stale oracle data")
	ErrInsufficientGasReserve = errors.New("insufficient gas reserve")
	ErrSwapExecutionFailed    = errors.New("swap execution failed")
	ErrSettlementTimeout      = errors.New("settlement timeout")
	ErrInvariantViolation     = errors.New("ledger invariant violation")
	ErrRateLimited            = errors.New("rate limited")
	ErrLockHeld               = errors.New("lock already held")
	ErrMalformedMessage       = errors.New("malformed cross-chain message")
)
