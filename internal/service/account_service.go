package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/ledger"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

// AccountService exposes deposits, withdrawals and balance reads.
type AccountService struct {
	ledger *ledger.Ledger
	sink   domain.EventSink
	logger *slog.Logger
}

// NewAccountService creates an AccountService.
func NewAccountService(l *ledger.Ledger, sink domain.EventSink, logger *slog.Logger) *AccountService {
	return &AccountService{
		ledger: l,
		sink:   sink,
		logger: logger.With(slog.String("component", "account_service")),
	}
}

// Deposit credits amount of asset to account.
func (s *AccountService) Deposit(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) (domain.AccountBalance, error) {
	bal, err := s.ledger.Deposit(ctx, account, asset, amount)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("account_service: deposit: %w", err)
	}
	s.emit(domain.EventDeposit, account, asset, amount)
	return bal, nil
}

// Withdraw debits exactly amount of available asset.
func (s *AccountService) Withdraw(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) (domain.AccountBalance, error) {
	bal, err := s.ledger.Withdraw(ctx, account, asset, amount)
	if err != nil {
		return domain.AccountBalance{}, fmt.Errorf("account_service: withdraw: %w", err)
	}
	s.emit(domain.EventWithdraw, account, asset, amount)
	return bal, nil
}

// WithdrawAll debits the whole available balance of asset and returns the
// amount paid out together with the resulting balance.
func (s *AccountService) WithdrawAll(ctx context.Context, account common.Address, asset domain.Asset) (*big.Int, domain.AccountBalance, error) {
	amount, err := s.ledger.WithdrawAll(ctx, account, asset)
	if err != nil {
		return nil, domain.AccountBalance{}, fmt.Errorf("account_service: withdraw all: %w", err)
	}
	s.emit(domain.EventWithdraw, account, asset, amount)
	return amount, s.ledger.Balance(account), nil
}

// Balance returns the balances of account. Unknown accounts read as zero.
func (s *AccountService) Balance(account common.Address) domain.AccountBalance {
	return s.ledger.Balance(account)
}

func (s *AccountService) emit(t domain.EventType, account common.Address, asset domain.Asset, amount *big.Int) {
	s.logger.Info(string(t),
		slog.String("account", account.Hex()),
		slog.String("asset", string(asset)),
		slog.String("amount", units.FormatAmount(amount, asset)),
	)
	if s.sink == nil {
		return
	}
	s.sink.Emit(domain.NewEvent(t, 0, account.Hex(), map[string]string{
		"asset":  string(asset),
		"amount": amount.String(),
	}))
}
