package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// AccountService is the ledger surface the account endpoints need.
type AccountService interface {
	Deposit(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) (domain.AccountBalance, error)
	Withdraw(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) (domain.AccountBalance, error)
	WithdrawAll(ctx context.Context, account common.Address, asset domain.Asset) (*big.Int, domain.AccountBalance, error)
	Balance(account common.Address) domain.AccountBalance
}

// AccountHandler serves balance, deposit and withdrawal endpoints.
type AccountHandler struct {
	accounts AccountService
	logger   *slog.Logger
}

// NewAccountHandler creates an AccountHandler.
func NewAccountHandler(accounts AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{accounts: accounts, logger: logger.With(slog.String("handler", "account"))}
}

type transferRequest struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount,omitempty"`
	All    bool   `json:"all,omitempty"`
}

type withdrawResponse struct {
	Withdrawn string      `json:"withdrawn"`
	Balance   balanceView `json:"balance"`
}

// Balances returns the available and locked funds of an account.
// GET /api/accounts/{address}/balances
func (h *AccountHandler) Balances(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newBalanceView(h.accounts.Balance(addr)))
}

// Deposit credits an account.
// POST /api/accounts/{address}/deposit
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	addr, asset, req, ok := h.parseTransfer(w, r)
	if !ok {
		return
	}
	if req.All {
		writeError(w, http.StatusBadRequest, "all is only valid for withdrawals")
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	bal, err := h.accounts.Deposit(r.Context(), addr, asset, amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newBalanceView(bal))
}

// Withdraw debits an account. The body names either an exact amount or
// all=true; sending both, or neither, is rejected.
// POST /api/accounts/{address}/withdraw
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	addr, asset, req, ok := h.parseTransfer(w, r)
	if !ok {
		return
	}
	if req.All == (req.Amount != "") {
		writeError(w, http.StatusBadRequest, "specify exactly one of amount or all")
		return
	}

	if req.All {
		out, bal, err := h.accounts.WithdrawAll(r.Context(), addr, asset)
		if err != nil {
			writeDomainError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, withdrawResponse{Withdrawn: out.String(), Balance: newBalanceView(bal)})
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	bal, err := h.accounts.Withdraw(r.Context(), addr, asset, amount)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawResponse{Withdrawn: amount.String(), Balance: newBalanceView(bal)})
}

func (h *AccountHandler) parseTransfer(w http.ResponseWriter, r *http.Request) (common.Address, domain.Asset, transferRequest, bool) {
	var req transferRequest
	addr, err := pathAddress(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return addr, "", req, false
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return addr, "", req, false
	}
	asset, err := domain.ParseAsset(req.Asset)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return addr, "", req, false
	}
	return addr, asset, req, true
}
