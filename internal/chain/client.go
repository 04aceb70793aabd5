// Package chain holds the EVM plumbing shared by the swap router and the
// on-chain gas reserve: a client interface, a transaction sender and ERC-20
// call helpers.
package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is the subset of *ethclient.Client used here.
type Client interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

var _ Client = (*ethclient.Client)(nil)

// Dial connects to an RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", url, err)
	}
	return c, nil
}

// TxSigner signs transactions for the sender's address.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// ErrReverted is returned when a mined transaction has status 0.
var ErrReverted = errors.New("transaction reverted")

// Sender submits transactions from one account and waits for receipts.
// Sends are serialized so nonces never collide.
type Sender struct {
	client  Client
	signer  TxSigner
	chainID *big.Int
	poll    time.Duration
	gasBump uint64 // percent added to gas estimates
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewSender creates a Sender, reading the chain id from the node.
func NewSender(ctx context.Context, client Client, signer TxSigner, logger *slog.Logger) (*Sender, error) {
	id, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: chain id: %w", err)
	}
	return &Sender{
		client:  client,
		signer:  signer,
		chainID: id,
		poll:    2 * time.Second,
		gasBump: 20,
		logger:  logger.With(slog.String("component", "tx_sender")),
	}, nil
}

// From returns the sending address.
func (s *Sender) From() common.Address {
	return s.signer.Address()
}

// Call performs a read-only call against to.
func (s *Sender) Call(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	return s.client.CallContract(ctx, ethereum.CallMsg{From: s.From(), To: &to, Data: data}, nil)
}

// Send signs and submits a call to `to`, then blocks until it is mined or
// ctx is done.
func (s *Sender) Send(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	tx, err := s.submit(ctx, to, data)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("tx submitted", slog.String("hash", tx.Hash().Hex()), slog.String("to", to.Hex()))

	rcpt, err := s.wait(ctx, tx.Hash())
	if err != nil {
		return nil, err
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return rcpt, fmt.Errorf("chain: tx %s: %w", tx.Hash().Hex(), ErrReverted)
	}
	return rcpt, nil
}

func (s *Sender) submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.From()
	nonce, err := s.client.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("chain: nonce: %w", err)
	}
	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain: gas price: %w", err)
	}
	gas, err := s.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("chain: estimate gas: %w", err)
	}
	gas += gas * s.gasBump / 100

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := s.signer.SignTx(tx, s.chainID)
	if err != nil {
		return nil, err
	}
	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("chain: send: %w", err)
	}
	return signed, nil
}

func (s *Sender) wait(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()
	for {
		rcpt, err := s.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return rcpt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("chain: receipt %s: %w", hash.Hex(), err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("chain: waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
