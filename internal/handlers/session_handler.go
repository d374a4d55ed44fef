package handlers

import (
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
)

type SessionHandler struct {
	sessions Sessions
}

func NewSessionHandler(sessions Sessions) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// Connect - Register the address a browser wallet connected with
func (h *SessionHandler) Connect(e *core.RequestEvent) error {
	var req struct {
		Address string `json:"address"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	sess, err := h.sessions.Connect(e.Request.Context(), req.Address)
	if err != nil {
		slog.Error("h.sessions.Connect()", "address", req.Address, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) Current(e *core.RequestEvent) error {
	sess, err := currentSession(e, h.sessions)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, sess)
}

func (h *SessionHandler) Disconnect(e *core.RequestEvent) error {
	if err := h.sessions.Disconnect(e.Request.Context(), e.Request.Header.Get(SessionHeader)); err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"message": "Wallet disconnected"})
}
