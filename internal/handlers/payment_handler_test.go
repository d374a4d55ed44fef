package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/wallet"
	"nft-ticket/models"
)

func TestGetPaymentStatus(t *testing.T) {
	h := NewPaymentHandler(nil, fakeChain{tx: &stacks.Tx{TxID: "0xabc", TxStatus: "success"}}, nil, testContract.Address)
	e, rec := newEvent(t, http.MethodGet, "/api/v1/payments/ABC", nil)
	e.Request.SetPathValue("txid", "ABC")
	require.NoError(t, h.GetPaymentStatus(e))
	assert.Equal(t, map[string]any{"txid": "0xabc", "status": "success"}, decode(t, rec))

	h = NewPaymentHandler(nil, fakeChain{err: stacks.ErrTxNotFound}, nil, testContract.Address)
	e, rec = newEvent(t, http.MethodGet, "/api/v1/payments/0xabc", nil)
	e.Request.SetPathValue("txid", "0xabc")
	require.NoError(t, h.GetPaymentStatus(e))
	assert.Equal(t, "pending", decode(t, rec)["status"])

	h = NewPaymentHandler(nil, fakeChain{err: errors.New("timeout")}, nil, testContract.Address)
	e, _ = newEvent(t, http.MethodGet, "/api/v1/payments/0xabc", nil)
	e.Request.SetPathValue("txid", "0xabc")
	requireStatus(t, h.GetPaymentStatus(e), http.StatusBadGateway)
}

func TestSimulatePayment(t *testing.T) {
	events := new(mockEvents)
	signer := &fakeSigner{txid: "0xpay"}
	h := NewPaymentHandler(events, nil, signer, testContract.Address)

	events.On("Get", mock.Anything, "evt-42").Return(models.Event{ID: "evt-42", Price: decimal.RequireFromString("2.5")}, nil)
	events.On("Get", mock.Anything, "free").Return(models.Event{ID: "free"}, nil)

	e, rec := newEvent(t, http.MethodPost, "/api/v1/test/simulate-payment", map[string]string{"eventId": "evt-42"})
	require.NoError(t, h.SimulatePayment(e))
	assert.Equal(t, "0xpay", decode(t, rec)["paymentTxId"])
	assert.Equal(t, wallet.TransferRequest{
		Recipient: testContract.Address,
		Amount:    2_500_000,
		Memo:      "Ticket for event evt-42",
	}, signer.req)

	e, _ = newEvent(t, http.MethodPost, "/api/v1/test/simulate-payment", map[string]string{"eventId": "free"})
	requireStatus(t, h.SimulatePayment(e), http.StatusBadRequest)

	disabled := NewPaymentHandler(events, nil, nil, testContract.Address)
	e, _ = newEvent(t, http.MethodPost, "/api/v1/test/simulate-payment", map[string]string{"eventId": "evt-42"})
	requireStatus(t, disabled.SimulatePayment(e), http.StatusNotFound)
}
