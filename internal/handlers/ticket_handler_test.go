package handlers

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nft-ticket/internal/services"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/internal/wallet"
	"nft-ticket/models"
)

func TestConfirmPresence(t *testing.T) {
	buyer := testAddress(t, 0x11)
	tickets := new(mockTickets)
	sessions := new(mockSessions)
	h := NewTicketHandler(tickets, sessions, stacks.Testnet)

	sess := wallet.Session{ID: testSessionID, Address: buyer}
	sessions.On("Current", mock.Anything, testSessionID).Return(sess, nil)
	tickets.On("ConfirmPresence", mock.Anything, sess, uint64(17)).
		Return(models.Ticket{TokenID: 17, Owner: buyer, PresenceConfirmed: true}, nil)
	tickets.On("ConfirmPresence", mock.Anything, sess, uint64(18)).
		Return(models.Ticket{}, status.ErrForbidden)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/tickets/17/presence", nil)
	e.Request.SetPathValue("tokenId", "17")
	require.NoError(t, h.ConfirmPresence(withSession(e)))
	assert.Equal(t, http.StatusOK, rec.Code)

	e, _ = newEvent(t, http.MethodPost, "/api/v1/tickets/18/presence", nil)
	e.Request.SetPathValue("tokenId", "18")
	requireStatus(t, h.ConfirmPresence(withSession(e)), http.StatusForbidden)

	e, _ = newEvent(t, http.MethodPost, "/api/v1/tickets/abc/presence", nil)
	e.Request.SetPathValue("tokenId", "abc")
	requireStatus(t, h.ConfirmPresence(withSession(e)), http.StatusBadRequest)

	e, _ = newEvent(t, http.MethodPost, "/api/v1/tickets/17/presence", nil)
	e.Request.SetPathValue("tokenId", "17")
	requireStatus(t, h.ConfirmPresence(e), http.StatusUnauthorized)
}

func TestMyTickets(t *testing.T) {
	buyer := testAddress(t, 0x11)
	tickets := new(mockTickets)
	sessions := new(mockSessions)
	h := NewTicketHandler(tickets, sessions, stacks.Testnet)

	sessions.On("Current", mock.Anything, testSessionID).Return(wallet.Session{ID: testSessionID, Address: buyer}, nil)
	tickets.On("Owned", mock.Anything, buyer).Return([]models.Ticket{{TokenID: 17, Owner: buyer}}, nil)

	e, rec := newEvent(t, http.MethodGet, "/api/v1/tickets", nil)
	require.NoError(t, h.MyTickets(withSession(e)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), buyer)
}

func TestWalletNFTs(t *testing.T) {
	holder := testAddress(t, 0x22)
	tickets := new(mockTickets)
	h := NewTicketHandler(tickets, nil, stacks.Testnet)

	tickets.On("Holdings", mock.Anything, holder).Return(services.Wallet{Address: holder, Balance: 1_000_000}, nil)

	e, rec := newEvent(t, http.MethodGet, "/api/v1/nfts/"+holder, nil)
	e.Request.SetPathValue("address", holder)
	require.NoError(t, h.WalletNFTs(e))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1_000_000, decode(t, rec)["balance"])

	e, _ = newEvent(t, http.MethodGet, "/api/v1/nfts/BADADDR", nil)
	e.Request.SetPathValue("address", "BADADDR")
	requireStatus(t, h.WalletNFTs(e), http.StatusBadRequest)
	tickets.AssertNumberOfCalls(t, "Holdings", 1)
}

func TestSessionHandler(t *testing.T) {
	addr := testAddress(t, 0x11)
	sessions := new(mockSessions)
	h := NewSessionHandler(sessions)

	sessions.On("Connect", mock.Anything, addr).Return(wallet.Session{ID: testSessionID, Address: addr, Network: "testnet"}, nil)
	sessions.On("Connect", mock.Anything, "BADADDR").
		Return(wallet.Session{}, &status.ValidationError{Field: "address", Reason: "invalid address"})
	sessions.On("Disconnect", mock.Anything, testSessionID).Return(nil)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/session/connect", map[string]string{"address": addr})
	require.NoError(t, h.Connect(e))
	assert.Equal(t, testSessionID, decode(t, rec)["id"])

	e, _ = newEvent(t, http.MethodPost, "/api/v1/session/connect", map[string]string{"address": "BADADDR"})
	requireStatus(t, h.Connect(e), http.StatusBadRequest)

	e, _ = newEvent(t, http.MethodGet, "/api/v1/session", nil)
	requireStatus(t, h.Current(e), http.StatusUnauthorized)

	e, rec = newEvent(t, http.MethodPost, "/api/v1/session/disconnect", nil)
	require.NoError(t, h.Disconnect(withSession(e)))
	assert.Equal(t, "Wallet disconnected", decode(t, rec)["message"])
}
