package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20JSON = `[
	{"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"name":"allowance","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"name":"approve","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
]`

// ERC20 is the parsed token ABI.
var ERC20 = mustABI(erc20JSON)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(fmt.Sprintf("chain: parse abi: %v", err))
	}
	return parsed
}

// BalanceOf reads token.balanceOf(account).
func BalanceOf(ctx context.Context, c Client, token, account common.Address) (*big.Int, error) {
	return callUint(ctx, c, token, "balanceOf", account)
}

// Allowance reads token.allowance(owner, spender).
func Allowance(ctx context.Context, c Client, token, owner, spender common.Address) (*big.Int, error) {
	return callUint(ctx, c, token, "allowance", owner, spender)
}

// PackApprove encodes approve(spender, amount).
func PackApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return ERC20.Pack("approve", spender, amount)
}

func callUint(ctx context.Context, c Client, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := ERC20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("chain: pack %s: %w", method, err)
	}
	raw, err := c.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("chain: %s on %s: %w", method, token.Hex(), err)
	}
	out, err := ERC20.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("chain: unpack %s: %w", method, err)
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("chain: %s: unexpected type %T", method, out[0])
	}
	return v, nil
}
