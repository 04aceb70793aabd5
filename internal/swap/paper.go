package swap

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/oracle"
)

// Paper fills at the current oracle price less a fee. MaxIn caps the input
// per asset to imitate shallow liquidity.
type Paper struct {
	price  oracle.Source
	feeBps uint32
	maxIn  map[domain.Asset]*big.Int
	logger *slog.Logger
}

// NewPaper creates a paper executor.
func NewPaper(price oracle.Source, feeBps uint32, maxIn map[domain.Asset]*big.Int, logger *slog.Logger) *Paper {
	return &Paper{
		price:  price,
		feeBps: feeBps,
		maxIn:  maxIn,
		logger: logger.With(slog.String("component", "paper_swap")),
	}
}

// Execute implements Executor.
func (p *Paper) Execute(ctx context.Context, assetIn domain.Asset, amountIn *big.Int, assetOut domain.Asset, minOut *big.Int) (*big.Int, error) {
	if assetIn == assetOut || !assetIn.Valid() || !assetOut.Valid() {
		return nil, fmt.Errorf("swap: paper: %w: bad pair %s/%s", domain.ErrSwapExecutionFailed, assetIn, assetOut)
	}
	if limit, ok := p.maxIn[assetIn]; ok && limit != nil && limit.Sign() > 0 && amountIn.Cmp(limit) > 0 {
		return nil, fmt.Errorf("swap: paper: %w: insufficient liquidity for %s %s", domain.ErrSwapExecutionFailed, amountIn, assetIn)
	}

	snap, err := p.price.ReadPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("swap: paper: %w: %v", domain.ErrSwapExecutionFailed, err)
	}

	var out *big.Int
	if assetIn == domain.AssetZETA {
		out = domain.SellProceeds(amountIn, snap.Price)
	} else {
		out = domain.ZETAForUSDC(amountIn, snap.Price)
	}
	out.Mul(out, big.NewInt(int64(domain.BpsDenominator)-int64(p.feeBps)))
	out.Quo(out, big.NewInt(domain.BpsDenominator))

	if minOut != nil && out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("swap: paper: %w: slippage exceeded, out %s < min %s", domain.ErrSwapExecutionFailed, out, minOut)
	}
	p.logger.Debug("paper fill",
		slog.String("in", amountIn.String()+" "+string(assetIn)),
		slog.String("out", out.String()+" "+string(assetOut)),
		slog.Int64("price", snap.Price),
	)
	return out, nil
}

var _ Executor = (*Paper)(nil)
