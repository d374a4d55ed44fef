package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"nft-ticket/internal/services/stacks"
)

type TicketHandler struct {
	tickets  Tickets
	sessions Sessions
	network  stacks.Network
}

func NewTicketHandler(tickets Tickets, sessions Sessions, network stacks.Network) *TicketHandler {
	return &TicketHandler{
		tickets:  tickets,
		sessions: sessions,
		network:  network,
	}
}

// MyTickets - Tickets recorded for the connected wallet
func (h *TicketHandler) MyTickets(e *core.RequestEvent) error {
	sess, err := currentSession(e, h.sessions)
	if err != nil {
		return apiError(err)
	}
	tickets, err := h.tickets.Owned(e.Request.Context(), sess.Address)
	if err != nil {
		slog.Error("h.tickets.Owned()", "owner", sess.Address, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusOK, tickets)
}

func (h *TicketHandler) ConfirmPresence(e *core.RequestEvent) error {
	tokenID, err := strconv.ParseUint(e.Request.PathValue("tokenId"), 10, 64)
	if err != nil {
		return apis.NewBadRequestError("Invalid token id", nil)
	}
	sess, err := currentSession(e, h.sessions)
	if err != nil {
		return apiError(err)
	}

	ticket, err := h.tickets.ConfirmPresence(e.Request.Context(), sess, tokenID)
	if err != nil {
		slog.Error("h.tickets.ConfirmPresence()", "tokenId", tokenID, "owner", sess.Address, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusOK, ticket)
}

// WalletNFTs - On-chain holdings and STX balance of any address
func (h *TicketHandler) WalletNFTs(e *core.RequestEvent) error {
	address := e.Request.PathValue("address")
	if err := h.network.ValidateAddress(address); err != nil {
		return apis.NewBadRequestError("Invalid address", nil)
	}
	w, err := h.tickets.Holdings(e.Request.Context(), address)
	if err != nil {
		slog.Error("h.tickets.Holdings()", "address", address, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusOK, w)
}
