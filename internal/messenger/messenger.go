// Package messenger relays settlement of executed orders to a second chain
// and closes the loop on the counterpart's callback. Every dispatched order
// gets a ticket that moves PENDING -> ACKED or PENDING -> FAILED exactly
// once; FAILED returns the escrowed proceeds to the owner.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/zetatrigger/internal/crypto"
	"github.com/alanyoungcy/zetatrigger/internal/domain"
	"github.com/alanyoungcy/zetatrigger/internal/units"
)

// Ledger credits compensation.
type Ledger interface {
	Credit(ctx context.Context, account common.Address, asset domain.Asset, amount *big.Int) error
}

// OrderSettler records the terminal settlement status of an order.
type OrderSettler interface {
	FinishSettlement(ctx context.Context, id uint64, ok bool, reason string) (domain.Order, error)
}

// Config holds messenger settings.
type Config struct {
	GasAsset domain.Asset
	// Fees is the required gas fee per destination chain.
	Fees map[uint64]*big.Int
	// Timeout after which a PENDING ticket fails.
	Timeout time.Duration
	// Relayer, when set, must have signed every inbound payload.
	Relayer common.Address
}

// Messenger owns the settlement tickets.
type Messenger struct {
	cfg      Config
	registry *Registry
	reserve  GasReserve
	gateway  Gateway
	ledger   Ledger
	orders   OrderSettler
	journal  domain.TicketStore
	sink     domain.EventSink
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	tickets map[uint64]*domain.SettlementTicket

	feeMu sync.Mutex // serializes reserve checks against holds
	holds map[uint64]feeHold
}

// feeHold is a gas fee set aside for an order that has not dispatched yet.
type feeHold struct {
	chainID uint64
	fee     *big.Int
}

// New creates a Messenger. journal and sink may be nil.
func New(
	cfg Config,
	registry *Registry,
	reserve GasReserve,
	gateway Gateway,
	ledger Ledger,
	orders OrderSettler,
	journal domain.TicketStore,
	sink domain.EventSink,
	logger *slog.Logger,
) *Messenger {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Messenger{
		cfg:      cfg,
		registry: registry,
		reserve:  reserve,
		gateway:  gateway,
		ledger:   ledger,
		orders:   orders,
		journal:  journal,
		sink:     sink,
		logger:   logger.With(slog.String("component", "messenger")),
		now:      func() time.Time { return time.Now().UTC() },
		tickets:  make(map[uint64]*domain.SettlementTicket),
		holds:    make(map[uint64]feeHold),
	}
}

// Restore loads persisted tickets.
func (m *Messenger) Restore(ctx context.Context) error {
	if m.journal == nil {
		return nil
	}
	rows, err := m.journal.LoadTickets(ctx)
	if err != nil {
		return fmt.Errorf("messenger: restore: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		t := row.Clone()
		m.tickets[t.OrderID] = &t
	}
	m.logger.Info("tickets restored", slog.Int("count", len(rows)))
	return nil
}

// RequiredFee returns the gas fee for a message to chainID.
func (m *Messenger) RequiredFee(chainID uint64) *big.Int {
	return domain.CopyAmount(m.cfg.Fees[chainID])
}

// Preflight checks that chainID has a counterpart and that the gas reserve,
// less the fees already held, covers the fee. It sends and holds nothing.
func (m *Messenger) Preflight(ctx context.Context, chainID uint64) (*big.Int, error) {
	m.feeMu.Lock()
	defer m.feeMu.Unlock()
	fee, err := m.available(ctx, chainID, 0)
	if err != nil {
		return nil, fmt.Errorf("messenger: preflight: %w", err)
	}
	return fee, nil
}

// Reserve is Preflight that also holds the fee for orderID, so concurrent
// orders cannot both count on the same reserve. The hold lasts until Send
// consumes it or ReleaseReserve drops it. Reserving twice for one order
// returns the existing hold.
func (m *Messenger) Reserve(ctx context.Context, orderID, chainID uint64) (*big.Int, error) {
	m.feeMu.Lock()
	defer m.feeMu.Unlock()
	if h, ok := m.holds[orderID]; ok && h.chainID == chainID {
		return domain.CopyAmount(h.fee), nil
	}
	fee, err := m.available(ctx, chainID, orderID)
	if err != nil {
		return nil, fmt.Errorf("messenger: reserve %d: %w", orderID, err)
	}
	m.holds[orderID] = feeHold{chainID: chainID, fee: fee}
	return domain.CopyAmount(fee), nil
}

// ReleaseReserve drops the fee held for orderID, if any.
func (m *Messenger) ReleaseReserve(orderID uint64) {
	m.feeMu.Lock()
	delete(m.holds, orderID)
	m.feeMu.Unlock()
}

// available returns the fee for chainID if the reserve covers it on top of
// every hold except the one for orderID. feeMu must be held.
func (m *Messenger) available(ctx context.Context, chainID, orderID uint64) (*big.Int, error) {
	if _, ok := m.registry.Lookup(chainID); !ok {
		return nil, fmt.Errorf("%w: no counterpart for chain %d", domain.ErrNotFound, chainID)
	}
	fee := m.RequiredFee(chainID)
	bal, err := m.reserve.Balance(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	allowance, err := m.reserve.Allowance(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("allowance: %w", err)
	}
	held := m.heldLocked(chainID, orderID)
	need := new(big.Int).Add(fee, held)
	if bal.Cmp(need) < 0 || allowance.Cmp(need) < 0 {
		return nil, fmt.Errorf("%w: fee %s, held %s, balance %s, allowance %s",
			domain.ErrInsufficientGasReserve, fee, held, bal, allowance)
	}
	return fee, nil
}

func (m *Messenger) heldLocked(chainID, except uint64) *big.Int {
	held := new(big.Int)
	for id, h := range m.holds {
		if id != except && h.chainID == chainID {
			held.Add(held, h.fee)
		}
	}
	return held
}

// consume spends a dispatched order's fee from the reserve and drops its
// hold in one step.
func (m *Messenger) consume(orderID, chainID uint64, fee *big.Int) {
	m.feeMu.Lock()
	defer m.feeMu.Unlock()
	if sp, ok := m.reserve.(Spender); ok {
		sp.Spend(chainID, fee)
	}
	delete(m.holds, orderID)
}

// Send dispatches the settlement of a SETTLING order whose proceeds are held
// in escrow. The ticket is recorded before dispatch; if dispatch cannot
// happen the ticket fails at once and the escrow is returned.
func (m *Messenger) Send(ctx context.Context, order domain.Order) (domain.SettlementTicket, error) {
	if !order.CrossChain() {
		return domain.SettlementTicket{}, fmt.Errorf("messenger: send %d: order has no destination chain", order.ID)
	}
	payload, err := EncodeSettle(SettlePayload{
		Action:    ActionSettle,
		OrderID:   order.ID,
		Recipient: order.Recipient,
		Asset:     order.ProceedsAsset(),
		Amount:    domain.CopyAmount(order.Proceeds),
	})
	if err != nil {
		return domain.SettlementTicket{}, err
	}

	t := domain.SettlementTicket{
		OrderID:          order.ID,
		Owner:            order.Owner,
		DestinationChain: order.DestChainID,
		PayloadHash:      PayloadHash(payload),
		Status:           domain.TicketPending,
		EscrowAsset:      order.ProceedsAsset(),
		EscrowAmount:     domain.CopyAmount(order.Proceeds),
		GasFee:           m.RequiredFee(order.DestChainID),
		CreatedAt:        m.now(),
	}

	m.mu.Lock()
	if _, dup := m.tickets[order.ID]; dup {
		m.mu.Unlock()
		return domain.SettlementTicket{}, fmt.Errorf("messenger: send %d: %w: ticket exists", order.ID, domain.ErrAlreadyInactive)
	}
	m.tickets[order.ID] = &t
	m.mu.Unlock()
	if err := m.save(ctx, t); err != nil {
		m.logger.Error("journal write failed on ticket create",
			slog.Uint64("order_id", order.ID),
			slog.String("error", err.Error()),
		)
	}

	dest, _ := m.registry.Lookup(order.DestChainID)
	fee, err := m.Reserve(ctx, order.ID, order.DestChainID)
	if err == nil {
		err = m.gateway.Dispatch(ctx, domain.OutboundMessage{
			DestinationChainID: order.DestChainID,
			DestinationAddress: dest,
			Payload:            payload,
			GasAsset:           m.cfg.GasAsset,
			GasAmount:          fee,
		})
	}
	if err != nil {
		m.logger.Warn("settlement dispatch failed",
			slog.Uint64("order_id", order.ID),
			slog.String("error", err.Error()),
		)
		m.ReleaseReserve(order.ID)
		resolved, _ := m.resolve(ctx, order.ID, false, "dispatch failed: "+err.Error())
		return resolved, fmt.Errorf("messenger: send %d: %w", order.ID, err)
	}

	m.consume(order.ID, order.DestChainID, fee)
	m.emit(domain.EventSettlementDispatched, t, map[string]string{
		"destination_chain": strconv.FormatUint(t.DestinationChain, 10),
		"payload_hash":      t.PayloadHash.Hex(),
		"gas_fee":           fee.String(),
	})
	return t.Clone(), nil
}

// Redispatch sends each SETTLING order that has no ticket. Such an order
// completed its swap but stopped before Send recorded a ticket, so nothing
// was sent for it and its escrow would otherwise never resolve. It returns how many
// were dispatched. Orders that fail to dispatch are refunded by Send.
func (m *Messenger) Redispatch(ctx context.Context, settling []domain.Order) int {
	n := 0
	for _, o := range settling {
		if o.Status != domain.OrderStatusSettling {
			continue
		}
		m.mu.Lock()
		_, known := m.tickets[o.ID]
		m.mu.Unlock()
		if known {
			continue
		}
		m.logger.Warn("settling order has no ticket, dispatching", slog.Uint64("order_id", o.ID))
		if _, err := m.Send(ctx, o); err != nil {
			m.logger.Error("redispatch failed",
				slog.Uint64("order_id", o.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		n++
	}
	return n
}

// Receive is the inbound entry point the transport calls on arrival. It
// authenticates the origin, matches the callback to its ticket and resolves
// it. Replays against a resolved ticket return nil and change nothing.
func (m *Messenger) Receive(ctx context.Context, msg domain.InboundMessage) error {
	if !m.registry.Authenticate(msg.OriginChainID, msg.OriginAddress) {
		m.reject(msg, "unregistered origin")
		return fmt.Errorf("messenger: receive from %d/%s: %w", msg.OriginChainID, msg.OriginAddress.Hex(), domain.ErrUnauthorized)
	}
	if m.cfg.Relayer != (common.Address{}) {
		signer, err := crypto.RecoverMessageSigner(PayloadHash(msg.Payload).Bytes(), msg.Signature)
		if err != nil || signer != m.cfg.Relayer {
			m.reject(msg, "bad relayer signature")
			return fmt.Errorf("messenger: receive: %w: relayer signature", domain.ErrUnauthorized)
		}
	}

	cb, err := DecodeCallback(msg.Payload)
	if err != nil {
		m.reject(msg, "malformed payload")
		return fmt.Errorf("messenger: receive: %w: %v", domain.ErrMalformedMessage, err)
	}

	m.mu.Lock()
	t, ok := m.tickets[cb.OrderID]
	var snapshot domain.SettlementTicket
	if ok {
		snapshot = t.Clone()
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("messenger: receive: order %d: %w", cb.OrderID, domain.ErrNotFound)
	}
	if snapshot.DestinationChain != msg.OriginChainID || snapshot.PayloadHash != cb.PayloadHash {
		m.reject(msg, "callback does not match ticket")
		return fmt.Errorf("messenger: receive: order %d: %w: ticket mismatch", cb.OrderID, domain.ErrUnauthorized)
	}

	_, err = m.resolve(ctx, cb.OrderID, cb.Status == domain.CallbackSuccess, cb.Reason)
	if errors.Is(err, domain.ErrAlreadyInactive) {
		return nil
	}
	return err
}

// Sweep fails every PENDING ticket older than the timeout and returns how
// many it failed.
func (m *Messenger) Sweep(ctx context.Context) int {
	cutoff := m.now().Add(-m.cfg.Timeout)

	m.mu.Lock()
	var expired []uint64
	for id, t := range m.tickets {
		if t.Status == domain.TicketPending && t.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	sort.Slice(expired, func(i, j int) bool { return expired[i] < expired[j] })
	n := 0
	for _, id := range expired {
		if _, err := m.resolve(ctx, id, false, domain.ErrSettlementTimeout.Error()); err == nil {
			n++
		}
	}
	return n
}

// Ticket returns a copy of the ticket for orderID.
func (m *Messenger) Ticket(orderID uint64) (domain.SettlementTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[orderID]
	if !ok {
		return domain.SettlementTicket{}, fmt.Errorf("messenger: ticket %d: %w", orderID, domain.ErrNotFound)
	}
	return t.Clone(), nil
}

// Tickets lists tickets with the given status, or all when status is empty.
func (m *Messenger) Tickets(status domain.TicketStatus) []domain.SettlementTicket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.SettlementTicket, 0, len(m.tickets))
	for _, t := range m.tickets {
		if status == "" || t.Status == status {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderID < out[j].OrderID })
	return out
}

// Forget drops resolved tickets from memory once archived.
func (m *Messenger) Forget(orderIDs []uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range orderIDs {
		if t, ok := m.tickets[id]; ok && t.Status != domain.TicketPending {
			delete(m.tickets, id)
			n++
		}
	}
	return n
}

// resolve performs the single PENDING -> ACKED/FAILED transition. The
// in-memory status flip under m.mu is what makes compensation run once.
func (m *Messenger) resolve(ctx context.Context, orderID uint64, ok bool, reason string) (domain.SettlementTicket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, found := m.tickets[orderID]
	if !found {
		return domain.SettlementTicket{}, fmt.Errorf("messenger: resolve %d: %w", orderID, domain.ErrNotFound)
	}
	if t.Status != domain.TicketPending {
		if ok && t.Status == domain.TicketFailed {
			m.logger.Error("late success callback for failed ticket; proceeds were already returned",
				slog.Uint64("order_id", orderID),
			)
		} else {
			m.logger.Info("duplicate callback ignored",
				slog.Uint64("order_id", orderID),
				slog.String("status", string(t.Status)),
			)
		}
		return t.Clone(), fmt.Errorf("messenger: resolve %d: %w", orderID, domain.ErrAlreadyInactive)
	}

	if !ok && t.EscrowAmount.Sign() > 0 {
		if err := m.ledger.Credit(ctx, t.Owner, t.EscrowAsset, t.EscrowAmount); err != nil {
			// The ticket stays PENDING so the sweeper retries the refund.
			m.logger.Error("settlement compensation failed",
				slog.Uint64("order_id", orderID),
				slog.String("error", err.Error()),
			)
			return t.Clone(), fmt.Errorf("messenger: resolve %d: compensate: %w", orderID, err)
		}
	}

	now := m.now()
	next := t.Clone()
	next.ResolvedAt = &now
	next.Status = domain.TicketAcked
	evt := domain.EventSettlementAcked
	if !ok {
		next.Status = domain.TicketFailed
		next.FailReason = reason
		evt = domain.EventSettlementFailed
	}
	m.tickets[orderID] = &next
	if err := m.save(ctx, next); err != nil {
		m.logger.Error("journal write failed on ticket resolve",
			slog.Uint64("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}
	if _, err := m.orders.FinishSettlement(ctx, orderID, ok, reason); err != nil {
		m.logger.Error("order settlement status update failed",
			slog.Uint64("order_id", orderID),
			slog.String("error", err.Error()),
		)
	}

	detail := map[string]string{"payload_hash": next.PayloadHash.Hex()}
	if !ok {
		detail["reason"] = reason
		detail["refunded"] = units.FormatAmount(next.EscrowAmount, next.EscrowAsset) + " " + string(next.EscrowAsset)
		detail["refund_asset"] = string(next.EscrowAsset)
		detail["refund_note"] = fmt.Sprintf("swap proceeds returned as %s; the %s sold is not restored",
			next.EscrowAsset, next.EscrowAsset.Opposite())
	}
	m.emit(evt, next, detail)
	return next.Clone(), nil
}

func (m *Messenger) reject(msg domain.InboundMessage, reason string) {
	m.logger.Warn("callback rejected",
		slog.Uint64("origin_chain", msg.OriginChainID),
		slog.String("origin", msg.OriginAddress.Hex()),
		slog.String("reason", reason),
	)
	if m.sink != nil {
		m.sink.Emit(domain.NewEvent(domain.EventCallbackRejected, 0, "", map[string]string{
			"origin_chain": strconv.FormatUint(msg.OriginChainID, 10),
			"origin":       msg.OriginAddress.Hex(),
			"reason":       reason,
		}))
	}
}

func (m *Messenger) emit(t domain.EventType, tk domain.SettlementTicket, detail map[string]string) {
	if m.sink == nil {
		return
	}
	m.sink.Emit(domain.NewEvent(t, tk.OrderID, tk.Owner.Hex(), detail))
}

func (m *Messenger) save(ctx context.Context, t domain.SettlementTicket) error {
	if m.journal == nil {
		return nil
	}
	return m.journal.SaveTicket(ctx, t)
}
