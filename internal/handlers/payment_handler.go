package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"nft-ticket/internal/services"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/wallet"
)

type PaymentHandler struct {
	events    Events
	chain     services.TxFetcher
	signer    wallet.Signer
	recipient string
}

// NewPaymentHandler takes the signer used by SimulatePayment; it may be nil
// when no development key is configured.
func NewPaymentHandler(events Events, chain services.TxFetcher, signer wallet.Signer, recipient string) *PaymentHandler {
	return &PaymentHandler{
		events:    events,
		chain:     chain,
		signer:    signer,
		recipient: recipient,
	}
}

// GetPaymentStatus - Chain status of a payment transaction
func (h *PaymentHandler) GetPaymentStatus(e *core.RequestEvent) error {
	txid := wallet.NormalizeTxID(e.Request.PathValue("txid"))
	tx, err := h.chain.GetTransaction(e.Request.Context(), txid)
	if errors.Is(err, stacks.ErrTxNotFound) {
		return e.JSON(http.StatusOK, map[string]any{"txid": txid, "status": services.TxStatusPending})
	}
	if err != nil {
		slog.Error("h.chain.GetTransaction()", "txid", txid, "error", err)
		return apis.NewApiError(http.StatusBadGateway, "Upstream unavailable", nil)
	}
	return e.JSON(http.StatusOK, map[string]any{"txid": txid, "status": tx.TxStatus})
}

// SimulatePayment - Pay for an event with the development key (for testing)
func (h *PaymentHandler) SimulatePayment(e *core.RequestEvent) error {
	if h.signer == nil {
		return apis.NewNotFoundError("Payment simulation is disabled", nil)
	}
	var req struct {
		EventID string `json:"eventId"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	ctx := e.Request.Context()

	event, err := h.events.Get(ctx, req.EventID)
	if err != nil {
		return apiError(err)
	}
	if !event.IsPaid() {
		return apis.NewBadRequestError("Event is free", nil)
	}
	amount, err := event.PriceMicroSTX()
	if err != nil {
		return apis.NewBadRequestError("Invalid event price", nil)
	}

	txid, err := h.signer.RequestTransfer(ctx, wallet.TransferRequest{
		Recipient: h.recipient,
		Amount:    amount,
		Memo:      "Ticket for event " + event.ID,
	})
	if err != nil {
		slog.Error("h.signer.RequestTransfer()", "event", event.ID, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"paymentTxId": txid, "amount": amount})
}
