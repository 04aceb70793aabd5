package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/zetatrigger/internal/domain"
)

// InboundReceiver accepts callbacks delivered by a relayer.
type InboundReceiver interface {
	Receive(ctx context.Context, msg domain.InboundMessage) error
}

// GatewayHandler is the webhook entry point for relayers that push inbound
// messages over HTTP instead of the redis stream. Requests are authenticated
// by middleware.Webhook before they reach it.
type GatewayHandler struct {
	receiver InboundReceiver
	logger   *slog.Logger
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(receiver InboundReceiver, logger *slog.Logger) *GatewayHandler {
	return &GatewayHandler{receiver: receiver, logger: logger.With(slog.String("handler", "gateway"))}
}

type inboundRequest struct {
	OriginChainID uint64        `json:"origin_chain_id"`
	OriginAddress string        `json:"origin_address"`
	Payload       hexutil.Bytes `json:"payload"`
	Signature     hexutil.Bytes `json:"signature,omitempty"`
}

// Receive hands a callback to the messenger. Replays of resolved callbacks
// are accepted and change nothing.
// POST /api/gateway/receive
func (h *GatewayHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req inboundRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	origin, err := parseAddress(req.OriginAddress)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	msg := domain.InboundMessage{
		OriginChainID: req.OriginChainID,
		OriginAddress: origin,
		Payload:       req.Payload,
		Signature:     req.Signature,
	}
	if err := h.receiver.Receive(r.Context(), msg); err != nil {
		h.logger.Warn("inbound callback rejected",
			slog.Uint64("origin_chain_id", req.OriginChainID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
