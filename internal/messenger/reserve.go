package messenger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/chain"
	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// GasReserve reports the gas-asset funds available to pay destination fees.
type GasReserve interface {
	// Balance is the messenger's own gas-asset balance.
	Balance(ctx context.Context, chainID uint64) (*big.Int, error)
	// Allowance is what the gateway may pull from that balance.
	Allowance(ctx context.Context, chainID uint64) (*big.Int, error)
}

// Spender is implemented by reserves that track consumption locally.
type Spender interface {
	Spend(chainID uint64, amount *big.Int)
}

// StaticReserve is an in-process reserve with fixed balance and allowance per
// destination chain, decremented as messages are sent.
type StaticReserve struct {
	mu        sync.Mutex
	balance   map[uint64]*big.Int
	allowance map[uint64]*big.Int
}

// NewStaticReserve creates an empty reserve.
func NewStaticReserve() *StaticReserve {
	return &StaticReserve{
		balance:   make(map[uint64]*big.Int),
		allowance: make(map[uint64]*big.Int),
	}
}

// Fund sets the balance and allowance for chainID.
func (r *StaticReserve) Fund(chainID uint64, balance, allowance *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balance[chainID] = domain.CopyAmount(balance)
	r.allowance[chainID] = domain.CopyAmount(allowance)
}

// Balance implements GasReserve.
func (r *StaticReserve) Balance(_ context.Context, chainID uint64) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.CopyAmount(r.balance[chainID]), nil
}

// Allowance implements GasReserve.
func (r *StaticReserve) Allowance(_ context.Context, chainID uint64) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return domain.CopyAmount(r.allowance[chainID]), nil
}

// Spend implements Spender.
func (r *StaticReserve) Spend(chainID uint64, amount *big.Int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range []map[uint64]*big.Int{r.balance, r.allowance} {
		v := domain.CopyAmount(m[chainID])
		v.Sub(v, amount)
		if v.Sign() < 0 {
			v.SetInt64(0)
		}
		m[chainID] = v
	}
}

// ChainReserve reads ZRC-20 gas token balances on chain: the balance of the
// messenger contract and its allowance to the gateway.
type ChainReserve struct {
	client    chain.Client
	holder    common.Address
	gateway   common.Address
	gasTokens map[uint64]common.Address
}

// NewChainReserve creates a ChainReserve. gasTokens maps a destination chain
// id to the ZRC-20 that pays its gas.
func NewChainReserve(client chain.Client, holder, gateway common.Address, gasTokens map[uint64]common.Address) *ChainReserve {
	return &ChainReserve{client: client, holder: holder, gateway: gateway, gasTokens: gasTokens}
}

// Balance implements GasReserve.
func (r *ChainReserve) Balance(ctx context.Context, chainID uint64) (*big.Int, error) {
	token, err := r.token(chainID)
	if err != nil {
		return nil, err
	}
	return chain.BalanceOf(ctx, r.client, token, r.holder)
}

// Allowance implements GasReserve.
func (r *ChainReserve) Allowance(ctx context.Context, chainID uint64) (*big.Int, error) {
	token, err := r.token(chainID)
	if err != nil {
		return nil, err
	}
	return chain.Allowance(ctx, r.client, token, r.holder, r.gateway)
}

func (r *ChainReserve) token(chainID uint64) (common.Address, error) {
	t, ok := r.gasTokens[chainID]
	if !ok {
		return common.Address{}, fmt.Errorf("messenger: no gas token for chain %d", chainID)
	}
	return t, nil
}

var (
	_ GasReserve = (*StaticReserve)(nil)
	_ GasReserve = (*ChainReserve)(nil)
	_ Spender    = (*StaticReserve)(nil)
)
