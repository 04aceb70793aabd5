package chain

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keySigner struct{ addr common.Address }

func (k keySigner) Address() common.Address { return k.addr }

func (k keySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	key, _ := ethcrypto.HexToECDSA("4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
}

type fakeClient struct {
	sent     []*types.Transaction
	status   uint64
	balances map[common.Address]*big.Int
}

func (f *fakeClient) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	m, err := ERC20.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := m.Inputs.Unpack(call.Data[4:])
	if err != nil {
		return nil, err
	}
	bal := f.balances[args[0].(common.Address)]
	if bal == nil {
		bal = new(big.Int)
	}
	return m.Outputs.Pack(bal)
}

func (f *fakeClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(7001), nil }

func (f *fakeClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return uint64(len(f.sent)), nil
}

func (f *fakeClient) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(1e9), nil }

func (f *fakeClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) { return 100_000, nil }

func (f *fakeClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeClient) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	for _, tx := range f.sent {
		if tx.Hash() == h {
			return &types.Receipt{Status: f.status, TxHash: h}, nil
		}
	}
	return nil, ethereum.NotFound
}

func TestSenderSend(t *testing.T) {
	ctx := context.Background()
	fc := &fakeClient{status: types.ReceiptStatusSuccessful}
	s, err := NewSender(ctx, fc, keySigner{addr: common.HexToAddress("0x1")}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	data, err := PackApprove(common.HexToAddress("0x2"), big.NewInt(5))
	require.NoError(t, err)
	rcpt, err := s.Send(ctx, common.HexToAddress("0x3"), data)
	require.NoError(t, err)
	require.Len(t, fc.sent, 1)
	assert.Equal(t, fc.sent[0].Hash(), rcpt.TxHash)
	assert.Equal(t, uint64(120_000), fc.sent[0].Gas())

	fc.status = types.ReceiptStatusFailed
	_, err = s.Send(ctx, common.HexToAddress("0x3"), data)
	assert.ErrorIs(t, err, ErrReverted)
}

func TestBalanceOf(t *testing.T) {
	acct := common.HexToAddress("0xabc")
	fc := &fakeClient{balances: map[common.Address]*big.Int{acct: big.NewInt(42)}}
	bal, err := BalanceOf(context.Background(), fc, common.HexToAddress("0x10"), acct)
	require.NoError(t, err)
	assert.Equal(t, int64(42), bal.Int64())
}
