package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"

	"nft-ticket/internal/services"
	"nft-ticket/internal/services/pinata"
	"nft-ticket/internal/store"
	"nft-ticket/internal/wallet"
	"nft-ticket/models"
)

const maxImageSize = 10 << 20

type EventHandler struct {
	events    Events
	purchases Purchases
	sessions  Sessions
}

func NewEventHandler(events Events, purchases Purchases, sessions Sessions) *EventHandler {
	return &EventHandler{
		events:    events,
		purchases: purchases,
		sessions:  sessions,
	}
}

func (h *EventHandler) ListEvents(e *core.RequestEvent) error {
	q := e.Request.URL.Query()
	f := store.EventFilter{
		Organizer: q.Get("organizer"),
		Status:    q.Get("status"),
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return apis.NewBadRequestError("Invalid limit", nil)
		}
		f.Limit = limit
	}

	events, err := h.events.List(e.Request.Context(), f)
	if err != nil {
		slog.Error("h.events.List()", "filter", f, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusOK, events)
}

func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	event, err := h.events.Get(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, event)
}

// CreateEvent - multipart form with an "image" file and an "eventData" JSON
// field. The connected wallet is the organizer unless eventData names one.
func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	sess, err := currentSession(e, h.sessions)
	if err != nil {
		return apiError(err)
	}

	img, raw, err := readUpload(e)
	if err != nil {
		return apis.NewBadRequestError(err.Error(), nil)
	}
	var req services.CreateEventRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return apis.NewBadRequestError("Invalid event data", err)
	}
	if req.Organizer.Address == "" {
		req.Organizer.Address = sess.Address
	}

	event, err := h.events.Create(e.Request.Context(), req, img)
	if err != nil {
		slog.Error("h.events.Create()", "title", req.Title, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusCreated, event)
}

// uploadEventData is the eventData field of the legacy upload form.
type uploadEventData struct {
	ID          json.RawMessage  `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Date        string           `json:"date"`
	Location    string           `json:"location"`
	Category    string           `json:"category"`
	Organizer   models.Organizer `json:"organizer"`
	Price       decimal.Decimal  `json:"price"`
	Status      string           `json:"status"`
}

func (d uploadEventData) event() (models.Event, error) {
	event := models.Event{
		ID:          strings.Trim(string(d.ID), `"`),
		Title:       d.Title,
		Description: d.Description,
		Location:    d.Location,
		Category:    d.Category,
		Organizer:   d.Organizer,
		Price:       d.Price,
		Status:      d.Status,
	}
	if event.ID == "" || event.Title == "" {
		return event, errors.New("event id and title are required")
	}
	if d.Date != "" {
		date, err := parseDate(d.Date)
		if err != nil {
			return event, fmt.Errorf("invalid event date %q", d.Date)
		}
		event.Date = date
	}
	return event, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// UploadEventAssets - Pin an event image and its NFT metadata
func (h *EventHandler) UploadEventAssets(e *core.RequestEvent) error {
	img, raw, err := readUpload(e)
	if err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "Missing image or event data"})
	}
	var data uploadEventData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": "Invalid event data"})
	}
	event, err := data.event()
	if err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"error": err.Error()})
	}

	res, err := h.events.Upload(e.Request.Context(), event, img)
	if err != nil {
		slog.Error("h.events.Upload()", "event", event.ID, "error", err)
		return e.JSON(http.StatusInternalServerError, map[string]any{
			"error":   "Error processing upload",
			"details": err.Error(),
		})
	}
	return e.JSON(http.StatusOK, map[string]any{
		"success":          true,
		"imageUrl":         res.Assets.ImageCID.URI(),
		"metadataUrl":      res.Assets.MetadataCID.URI(),
		"imageIpfsHash":    string(res.Assets.ImageCID),
		"metadataIpfsHash": string(res.Assets.MetadataCID),
		"imageGatewayUrl":  res.ImageURL,
	})
}

func readUpload(e *core.RequestEvent) (pinata.Image, string, error) {
	if err := e.Request.ParseMultipartForm(maxImageSize); err != nil {
		return pinata.Image{}, "", errors.New("invalid multipart form")
	}
	raw := e.Request.FormValue("eventData")
	file, header, err := e.Request.FormFile("image")
	if err != nil || raw == "" {
		return pinata.Image{}, "", errors.New("missing image or event data")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageSize+1))
	if err != nil {
		return pinata.Image{}, "", errors.New("invalid image")
	}
	if len(data) > maxImageSize {
		return pinata.Image{}, "", fmt.Errorf("image exceeds %d bytes", maxImageSize)
	}
	return pinata.Image{FileName: header.Filename, Data: data}, raw, nil
}

// PurchaseTicket - Pay (for paid events) and mint a ticket. The browser wallet
// has already run the transfer; its outcome arrives as walletTxId or
// walletError.
func (h *EventHandler) PurchaseTicket(e *core.RequestEvent) error {
	sess, err := currentSession(e, h.sessions)
	if err != nil {
		return apiError(err)
	}
	var req struct {
		WalletTxID  string `json:"walletTxId"`
		WalletError string `json:"walletError"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	sess.Signer = wallet.ReportedSigner{TxID: req.WalletTxID, Error: req.WalletError}

	eventID := e.Request.PathValue("eventId")
	res, err := h.purchases.Purchase(e.Request.Context(), sess, eventID)
	if err != nil {
		slog.Error("h.purchases.Purchase()", "event", eventID, "buyer", sess.Address, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusAccepted, res)
}
