package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// TokenCounter reads the id of the most recently minted token.
type TokenCounter func(ctx context.Context) (uint64, error)

type AdminHandler struct {
	purchases Purchases
	redis     Pinger
	lastToken TokenCounter
	network   string
	contract  string
}

func NewAdminHandler(purchases Purchases, redis Pinger, lastToken TokenCounter, network, contract string) *AdminHandler {
	return &AdminHandler{
		purchases: purchases,
		redis:     redis,
		lastToken: lastToken,
		network:   network,
		contract:  contract,
	}
}

func (h *AdminHandler) Health(e *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(e.Request.Context(), 2*time.Second)
	defer cancel()

	body := map[string]any{
		"status":   "ok",
		"network":  h.network,
		"contract": h.contract,
		"redis":    "ok",
	}
	// The chain API being down does not make this service unhealthy.
	if h.lastToken != nil {
		if id, err := h.lastToken(ctx); err != nil {
			slog.Warn("h.lastToken()", "error", err)
			body["chain"] = err.Error()
		} else {
			body["chain"], body["lastTokenId"] = "ok", id
		}
	}
	if err := h.redis(ctx); err != nil {
		slog.Error("redis health check", "error", err)
		body["status"], body["redis"] = "degraded", err.Error()
		return e.JSON(http.StatusServiceUnavailable, body)
	}
	return e.JSON(http.StatusOK, body)
}

// PendingMints - Mint jobs still waiting for a terminal status
func (h *AdminHandler) PendingMints(e *core.RequestEvent) error {
	if !e.HasSuperuserAuth() {
		return apis.NewUnauthorizedError("Admin access required", nil)
	}

	jobs, err := h.purchases.PendingJobs(e.Request.Context())
	if err != nil {
		slog.Error("h.purchases.PendingJobs()", "error", err)
		return apiError(err)
	}
	out := make([]map[string]any, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, map[string]any{
			"job":     job,
			"polling": h.purchases.Polling(job.TxID),
		})
	}
	return e.JSON(http.StatusOK, out)
}
