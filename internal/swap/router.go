package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/alanyoungcy/zetatrigger/internal/chain"
	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

const routerJSON = `[
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"name":"swapExactTokensForTokens","outputs":[{"name":"amounts","type":"uint256[]"}],"stateMutability":"nonpayable","type":"function"}
]`

var routerABI = mustRouterABI()

func mustRouterABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(routerJSON))
	if err != nil {
		panic(fmt.Sprintf("swap: parse router abi: %v", err))
	}
	return parsed
}

// TxSender is the slice of chain.Sender the router needs.
type TxSender interface {
	From() common.Address
	Call(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error)
}

// RouterConfig locates the router and the ERC-20 tokens of the pair.
type RouterConfig struct {
	Router   common.Address
	Tokens   map[domain.Asset]common.Address
	Deadline time.Duration
}

// Router swaps through a UniswapV2-compatible router with the operator
// account. The output is measured from the recipient's balance change, so
// swaps through one Router are serialized.
type Router struct {
	cfg    RouterConfig
	client chain.Client
	sender TxSender
	logger *slog.Logger

	mu sync.Mutex // held from allowance check to balance-after read
}

// NewRouter creates a Router executor.
func NewRouter(cfg RouterConfig, client chain.Client, sender TxSender, logger *slog.Logger) (*Router, error) {
	for _, a := range []domain.Asset{domain.AssetZETA, domain.AssetUSDC} {
		if cfg.Tokens[a] == (common.Address{}) {
			return nil, fmt.Errorf("swap: router: no token address for %s", a)
		}
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 2 * time.Minute
	}
	return &Router{
		cfg:    cfg,
		client: client,
		sender: sender,
		logger: logger.With(slog.String("component", "router_swap")),
	}, nil
}

// Quote returns the router's expected output for amountIn.
func (r *Router) Quote(ctx context.Context, assetIn domain.Asset, amountIn *big.Int, assetOut domain.Asset) (*big.Int, error) {
	data, err := routerABI.Pack("getAmountsOut", amountIn, r.path(assetIn, assetOut))
	if err != nil {
		return nil, fmt.Errorf("swap: router: pack quote: %w", err)
	}
	raw, err := r.sender.Call(ctx, r.cfg.Router, data)
	if err != nil {
		return nil, fmt.Errorf("swap: router: quote: %w", err)
	}
	out, err := routerABI.Unpack("getAmountsOut", raw)
	if err != nil {
		return nil, fmt.Errorf("swap: router: unpack quote: %w", err)
	}
	amounts, ok := out[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("swap: router: malformed quote")
	}
	return amounts[len(amounts)-1], nil
}

// Execute implements Executor.
func (r *Router) Execute(ctx context.Context, assetIn domain.Asset, amountIn *big.Int, assetOut domain.Asset, minOut *big.Int) (*big.Int, error) {
	quoted, err := r.Quote(ctx, assetIn, amountIn, assetOut)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSwapExecutionFailed, err)
	}
	if quoted.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("swap: router: %w: quote %s below min %s", domain.ErrSwapExecutionFailed, quoted, minOut)
	}

	tokenIn, tokenOut := r.cfg.Tokens[assetIn], r.cfg.Tokens[assetOut]
	self := r.sender.From()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureAllowance(ctx, tokenIn, amountIn); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSwapExecutionFailed, err)
	}

	before, err := chain.BalanceOf(ctx, r.client, tokenOut, self)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSwapExecutionFailed, err)
	}

	deadline := big.NewInt(time.Now().Add(r.cfg.Deadline).Unix())
	data, err := routerABI.Pack("swapExactTokensForTokens", amountIn, minOut, r.path(assetIn, assetOut), self, deadline)
	if err != nil {
		return nil, fmt.Errorf("swap: router: pack swap: %w", err)
	}
	rcpt, err := r.sender.Send(ctx, r.cfg.Router, data)
	if err != nil {
		if errors.Is(err, chain.ErrReverted) {
			return nil, fmt.Errorf("swap: router: %w: %v", domain.ErrSwapExecutionFailed, err)
		}
		// A send whose outcome is unknown is not safe to retry blindly.
		return nil, fmt.Errorf("swap: router: %w: %v", domain.ErrInvariantViolation, err)
	}

	after, err := chain.BalanceOf(ctx, r.client, tokenOut, self)
	if err != nil {
		return nil, fmt.Errorf("swap: router: %w: balance after %s: %v", domain.ErrInvariantViolation, rcpt.TxHash.Hex(), err)
	}
	out := new(big.Int).Sub(after, before)
	if out.Cmp(minOut) < 0 {
		return nil, fmt.Errorf("swap: router: %w: received %s below min %s in %s",
			domain.ErrInvariantViolation, out, minOut, rcpt.TxHash.Hex())
	}

	r.logger.Info("swap executed",
		slog.String("tx", rcpt.TxHash.Hex()),
		slog.String("in", amountIn.String()+" "+string(assetIn)),
		slog.String("out", out.String()+" "+string(assetOut)),
	)
	return out, nil
}

func (r *Router) ensureAllowance(ctx context.Context, token common.Address, amount *big.Int) error {
	current, err := chain.Allowance(ctx, r.client, token, r.sender.From(), r.cfg.Router)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		return nil
	}
	data, err := chain.PackApprove(r.cfg.Router, amount)
	if err != nil {
		return err
	}
	if _, err := r.sender.Send(ctx, token, data); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

func (r *Router) path(in, out domain.Asset) []common.Address {
	return []common.Address{r.cfg.Tokens[in], r.cfg.Tokens[out]}
}

var _ Executor = (*Router)(nil)
