package security

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_Allow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRateLimiter(db, 2)

	mock.ExpectIncr("ratelimit:purchase:1.2.3.4").SetVal(1)
	mock.ExpectExpire("ratelimit:purchase:1.2.3.4", time.Minute).SetVal(true)
	mock.ExpectIncr("ratelimit:purchase:1.2.3.4").SetVal(2)
	mock.ExpectIncr("ratelimit:purchase:1.2.3.4").SetVal(3)

	for _, want := range []bool{true, true, false} {
		ok, err := r.Allow("purchase:1.2.3.4")
		require.NoError(t, err)
		assert.Equal(t, want, ok)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func requestEvent(req *http.Request) *core.RequestEvent {
	e := &core.RequestEvent{}
	e.Request = req
	e.Response = httptest.NewRecorder()
	return e
}

func TestRateLimiter_Limit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRateLimiter(db, 1)
	limit := r.Limit("mint")

	req := httptest.NewRequest(http.MethodPost, "/api/mint-nft", nil)
	req.RemoteAddr = "10.0.0.7:51234"

	mock.ExpectIncr("ratelimit:mint:10.0.0.7").SetVal(1)
	mock.ExpectExpire("ratelimit:mint:10.0.0.7", time.Minute).SetVal(true)
	assert.NoError(t, limit(requestEvent(req)))

	mock.ExpectIncr("ratelimit:mint:10.0.0.7").SetVal(2)
	err := limit(requestEvent(req))
	var apiErr *router.ApiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)

	mock.ExpectIncr("ratelimit:mint:10.0.0.7").SetErr(errors.New("connection refused"))
	assert.NoError(t, limit(requestEvent(req)), "redis outage lets requests through")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAntiBot(t *testing.T) {
	db, _ := redismock.NewClientMock()
	antiBot := NewRateLimiter(db, 1).AntiBot()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Googlebot/2.1)")
	var apiErr *router.ApiError
	require.ErrorAs(t, antiBot(requestEvent(req)), &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")
	assert.NoError(t, antiBot(requestEvent(req)))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", clientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", clientIP(req))
}
