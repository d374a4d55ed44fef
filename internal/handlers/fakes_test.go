package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"nft-ticket/internal/c32"
	"nft-ticket/internal/services"
	"nft-ticket/internal/services/pinata"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/store"
	"nft-ticket/internal/wallet"
	"nft-ticket/models"
)

const testSessionID = "session_000102030405060708090a0b0c0d0e0f1011121314151617"

var testContract = stacks.Contract{Address: "ST3GJH07ZBJ6F385P8JP7YCS03E3HH6FENAZ5YBPK", Name: "nft-ticket"}

func testAddress(t *testing.T, b byte) string {
	t.Helper()
	addr, err := c32.Address(c32.VersionTestnetSingleSig, bytes.Repeat([]byte{b}, 20))
	require.NoError(t, err)
	return addr
}

// newEvent builds a RequestEvent around an httptest recorder. body is JSON
// encoded unless it is already a string.
func newEvent(t *testing.T, method, target string, body any) (*core.RequestEvent, *httptest.ResponseRecorder) {
	t.Helper()
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(v))
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()

	e := &core.RequestEvent{}
	e.Request = req
	e.Response = rec
	return e, rec
}

func withSession(e *core.RequestEvent) *core.RequestEvent {
	e.Request.Header.Set(SessionHeader, testSessionID)
	return e
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func requireStatus(t *testing.T, err error, code int) {
	t.Helper()
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Status)
}

type mockMinter struct{ mock.Mock }

func (m *mockMinter) SubmitMint(ctx context.Context, in services.MintIntent) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockMinter) Contract() stacks.Contract { return testContract }

func (m *mockMinter) Network() stacks.Network { return stacks.Testnet }

type mockSessions struct{ mock.Mock }

func (m *mockSessions) Connect(ctx context.Context, address string) (wallet.Session, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(wallet.Session), args.Error(1)
}

func (m *mockSessions) Current(ctx context.Context, id string) (wallet.Session, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(wallet.Session), args.Error(1)
}

func (m *mockSessions) Disconnect(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) Create(ctx context.Context, req services.CreateEventRequest, img pinata.Image) (models.Event, error) {
	args := m.Called(ctx, req, img)
	return args.Get(0).(models.Event), args.Error(1)
}

func (m *mockEvents) Upload(ctx context.Context, event models.Event, img pinata.Image) (services.UploadResult, error) {
	args := m.Called(ctx, event, img)
	return args.Get(0).(services.UploadResult), args.Error(1)
}

func (m *mockEvents) Get(ctx context.Context, id string) (models.Event, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(models.Event), args.Error(1)
}

func (m *mockEvents) List(ctx context.Context, f store.EventFilter) ([]models.Event, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]models.Event), args.Error(1)
}

type mockPurchases struct{ mock.Mock }

func (m *mockPurchases) Purchase(ctx context.Context, sess wallet.Session, eventID string) (services.PurchaseResult, error) {
	args := m.Called(ctx, sess, eventID)
	return args.Get(0).(services.PurchaseResult), args.Error(1)
}

func (m *mockPurchases) Recover(ctx context.Context, in services.ReconcileInput) (models.MintJob, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.MintJob), args.Error(1)
}

func (m *mockPurchases) Cancel(ctx context.Context, owner, txid string) (models.MintJob, error) {
	args := m.Called(ctx, owner, txid)
	return args.Get(0).(models.MintJob), args.Error(1)
}

func (m *mockPurchases) Job(ctx context.Context, txid string) (models.MintJob, error) {
	args := m.Called(ctx, txid)
	return args.Get(0).(models.MintJob), args.Error(1)
}

func (m *mockPurchases) Polling(txid string) bool {
	return m.Called(txid).Bool(0)
}

func (m *mockPurchases) PendingJobs(ctx context.Context) ([]models.MintJob, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.MintJob), args.Error(1)
}

type mockTickets struct{ mock.Mock }

func (m *mockTickets) Owned(ctx context.Context, owner string) ([]models.Ticket, error) {
	args := m.Called(ctx, owner)
	return args.Get(0).([]models.Ticket), args.Error(1)
}

func (m *mockTickets) ConfirmPresence(ctx context.Context, sess wallet.Session, tokenID uint64) (models.Ticket, error) {
	args := m.Called(ctx, sess, tokenID)
	return args.Get(0).(models.Ticket), args.Error(1)
}

func (m *mockTickets) Holdings(ctx context.Context, address string) (services.Wallet, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(services.Wallet), args.Error(1)
}

type fakeChain struct {
	tx  *stacks.Tx
	err error
}

func (f fakeChain) GetTransaction(context.Context, string) (*stacks.Tx, error) {
	return f.tx, f.err
}

type fakeSigner struct {
	req  wallet.TransferRequest
	txid string
}

func (f *fakeSigner) RequestTransfer(_ context.Context, req wallet.TransferRequest) (string, error) {
	f.req = req
	return f.txid, nil
}
