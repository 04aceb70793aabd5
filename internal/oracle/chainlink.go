package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

const aggregatorV3ABI = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the read-only slice of an ethclient.Client.
type ContractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Chainlink reads an AggregatorV3 price feed.
type Chainlink struct {
	caller ContractCaller
	feed   common.Address
	abi    abi.ABI

	once     sync.Once
	decimals uint8
	decErr   error
}

// NewChainlink creates a source for the aggregator at feed.
func NewChainlink(caller ContractCaller, feed common.Address) (*Chainlink, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("oracle: parse aggregator abi: %w", err)
	}
	return &Chainlink{caller: caller, feed: feed, abi: parsed}, nil
}

// ReadPrice calls latestRoundData and rescales the answer to price ticks.
func (c *Chainlink) ReadPrice(ctx context.Context) (domain.PriceSnapshot, error) {
	dec, err := c.feedDecimals(ctx)
	if err != nil {
		return domain.PriceSnapshot{}, err
	}

	out, err := c.call(ctx, "latestRoundData")
	if err != nil {
		return domain.PriceSnapshot{}, err
	}
	if len(out) < 4 {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: chainlink: short latestRoundData result")
	}
	answer, ok := out[1].(*big.Int)
	if !ok {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: chainlink: unexpected answer type %T", out[1])
	}
	updatedAt, ok := out[3].(*big.Int)
	if !ok {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: chainlink: unexpected updatedAt type %T", out[3])
	}
	if answer.Sign() <= 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: chainlink: %w: non-positive answer", domain.ErrStaleOracleData)
	}
	if updatedAt.Sign() == 0 {
		return domain.PriceSnapshot{}, fmt.Errorf("oracle: chainlink: %w: round not complete", domain.ErrStaleOracleData)
	}

	return domain.PriceSnapshot{
		Price:     units.PriceFromFeed(answer, dec),
		Timestamp: time.Unix(updatedAt.Int64(), 0).UTC(),
	}, nil
}

func (c *Chainlink) feedDecimals(ctx context.Context) (uint8, error) {
	c.once.Do(func() {
		out, err := c.call(ctx, "decimals")
		if err != nil {
			c.decErr = err
			return
		}
		d, ok := out[0].(uint8)
		if !ok {
			c.decErr = fmt.Errorf("oracle: chainlink: unexpected decimals type %T", out[0])
			return
		}
		c.decimals = d
	})
	return c.decimals, c.decErr
}

func (c *Chainlink) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := c.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("oracle: chainlink: pack %s: %w", method, err)
	}
	raw, err := c.caller.CallContract(ctx, ethereum.CallMsg{To: &c.feed, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("oracle: chainlink: call %s: %w", method, err)
	}
	out, err := c.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("oracle: chainlink: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("oracle: chainlink: empty %s result", method)
	}
	return out, nil
}

var _ Source = (*Chainlink)(nil)
