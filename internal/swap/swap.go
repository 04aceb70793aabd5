// Package swap converts between ZETA and USDC at execution time. The engine
// sees only the Executor interface; Paper fills against the oracle and Router
// trades through a UniswapV2-style router contract.
package swap

import (
	"context"
	"math/big"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// Executor performs one conversion. It returns the amount of assetOut
// received, which is never below minOut, or an error wrapping
// domain.ErrSwapExecutionFailed for recoverable venue failures.
type Executor interface {
	Execute(ctx context.Context, assetIn domain.Asset, amountIn *big.Int, assetOut domain.Asset, minOut *big.Int) (*big.Int, error)
}
