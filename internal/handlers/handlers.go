package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"nft-ticket/internal/services"
	"nft-ticket/internal/services/pinata"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/internal/store"
	"nft-ticket/internal/wallet"
	"nft-ticket/models"
)

// SessionHeader carries the id returned by the connect endpoint.
const SessionHeader = "X-Session-ID"

type Minter interface {
	SubmitMint(ctx context.Context, in services.MintIntent) (string, error)
	Contract() stacks.Contract
	Network() stacks.Network
}

type Sessions interface {
	Connect(ctx context.Context, address string) (wallet.Session, error)
	Current(ctx context.Context, id string) (wallet.Session, error)
	Disconnect(ctx context.Context, id string) error
}

type Events interface {
	Create(ctx context.Context, req services.CreateEventRequest, img pinata.Image) (models.Event, error)
	Upload(ctx context.Context, event models.Event, img pinata.Image) (services.UploadResult, error)
	Get(ctx context.Context, id string) (models.Event, error)
	List(ctx context.Context, f store.EventFilter) ([]models.Event, error)
}

type Purchases interface {
	Purchase(ctx context.Context, sess wallet.Session, eventID string) (services.PurchaseResult, error)
	Recover(ctx context.Context, in services.ReconcileInput) (models.MintJob, error)
	Cancel(ctx context.Context, owner, txid string) (models.MintJob, error)
	Job(ctx context.Context, txid string) (models.MintJob, error)
	Polling(txid string) bool
	PendingJobs(ctx context.Context) ([]models.MintJob, error)
}

type Tickets interface {
	Owned(ctx context.Context, owner string) ([]models.Ticket, error)
	ConfirmPresence(ctx context.Context, sess wallet.Session, tokenID uint64) (models.Ticket, error)
	Holdings(ctx context.Context, address string) (services.Wallet, error)
}

// currentSession resolves the X-Session-ID header.
func currentSession(e *core.RequestEvent, sessions Sessions) (wallet.Session, error) {
	id := e.Request.Header.Get(SessionHeader)
	if id == "" {
		return wallet.Session{}, status.ErrNoSession
	}
	return sessions.Current(e.Request.Context(), id)
}

// apiError maps the status taxonomy onto PocketBase API errors.
func apiError(err error) error {
	var (
		validation *status.ValidationError
		metadata   *status.InvalidMetadataError
		rejected   *status.BroadcastRejectedError
		upload     *status.UploadError
	)
	switch {
	case errors.As(err, &metadata):
		return apis.NewBadRequestError(metadata.Error(), nil)
	case errors.As(err, &validation):
		return apis.NewBadRequestError(validation.Reason, nil)
	case errors.Is(err, status.ErrValidation):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrUserRejected):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.As(err, &rejected):
		return apis.NewBadRequestError(rejected.Error(), nil)
	case errors.Is(err, status.ErrNoSession):
		return apis.NewUnauthorizedError("Wallet not connected", nil)
	case errors.Is(err, status.ErrForbidden):
		return apis.NewForbiddenError("Access denied", nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.As(err, &upload):
		return apis.NewApiError(http.StatusBadGateway, "Upload failed: "+upload.Stage, nil)
	case errors.Is(err, status.ErrNetwork):
		return apis.NewApiError(http.StatusBadGateway, "Upstream unavailable", nil)
	case errors.Is(err, status.ErrMissingSigningKey):
		return apis.NewInternalServerError("Server configuration error: Missing STACKS_PRIVATE_KEY", nil)
	}
	return apis.NewInternalServerError("internal error", nil)
}
