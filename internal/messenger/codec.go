package messenger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// ActionSettle asks the counterpart to deliver proceeds to a recipient.
const ActionSettle uint8 = 1

// SettlePayload is the outbound instruction for one executed order.
type SettlePayload struct {
	Action    uint8
	OrderID   uint64
	Recipient common.Address
	Asset     domain.Asset
	Amount    *big.Int
}

// Callback is the counterpart's answer to a SettlePayload.
type Callback struct {
	OrderID     uint64
	PayloadHash common.Hash
	Status      domain.CallbackStatus
	Reason      string
}

var (
	settleArgs   abi.Arguments
	callbackArgs abi.Arguments
)

func init() {
	mustType := func(t string) abi.Type {
		typ, err := abi.NewType(t, "", nil)
		if err != nil {
			panic(fmt.Sprintf("messenger: abi type %s: %v", t, err))
		}
		return typ
	}
	settleArgs = abi.Arguments{
		{Name: "action", Type: mustType("uint8")},
		{Name: "orderId", Type: mustType("uint64")},
		{Name: "recipient", Type: mustType("address")},
		{Name: "asset", Type: mustType("string")},
		{Name: "amount", Type: mustType("uint256")},
	}
	callbackArgs = abi.Arguments{
		{Name: "orderId", Type: mustType("uint64")},
		{Name: "payloadHash", Type: mustType("bytes32")},
		{Name: "status", Type: mustType("uint8")},
		{Name: "reason", Type: mustType("string")},
	}
}

// EncodeSettle ABI-encodes p.
func EncodeSettle(p SettlePayload) ([]byte, error) {
	b, err := settleArgs.Pack(p.Action, p.OrderID, p.Recipient, string(p.Asset), p.Amount)
	if err != nil {
		return nil, fmt.Errorf("messenger: encode settle: %w", err)
	}
	return b, nil
}

// DecodeSettle is the inverse of EncodeSettle.
func DecodeSettle(b []byte) (SettlePayload, error) {
	vals, err := settleArgs.Unpack(b)
	if err != nil {
		return SettlePayload{}, fmt.Errorf("messenger: decode settle: %w", err)
	}
	return SettlePayload{
		Action:    vals[0].(uint8),
		OrderID:   vals[1].(uint64),
		Recipient: vals[2].(common.Address),
		Asset:     domain.Asset(vals[3].(string)),
		Amount:    vals[4].(*big.Int),
	}, nil
}

// EncodeCallback ABI-encodes c.
func EncodeCallback(c Callback) ([]byte, error) {
	b, err := callbackArgs.Pack(c.OrderID, [32]byte(c.PayloadHash), uint8(c.Status), c.Reason)
	if err != nil {
		return nil, fmt.Errorf("messenger: encode callback: %w", err)
	}
	return b, nil
}

// DecodeCallback is the inverse of EncodeCallback.
func DecodeCallback(b []byte) (Callback, error) {
	vals, err := callbackArgs.Unpack(b)
	if err != nil {
		return Callback{}, fmt.Errorf("messenger: decode callback: %w", err)
	}
	st := domain.CallbackStatus(vals[2].(uint8))
	if st != domain.CallbackSuccess && st != domain.CallbackFailure {
		return Callback{}, fmt.Errorf("messenger: decode callback: unknown status %d", st)
	}
	return Callback{
		OrderID:     vals[0].(uint64),
		PayloadHash: common.Hash(vals[1].([32]byte)),
		Status:      st,
		Reason:      vals[3].(string),
	}, nil
}

// PayloadHash is keccak256 of an encoded payload.
func PayloadHash(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}
