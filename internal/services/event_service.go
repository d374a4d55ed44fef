package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"nft-ticket/internal/services/pinata"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/internal/store"
	"nft-ticket/models"
	"nft-ticket/utils"
)

type CreateEventRequest struct {
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Date        time.Time        `json:"date"`
	Location    string           `json:"location"`
	Category    string           `json:"category"`
	Price       decimal.Decimal  `json:"price"`
	Capacity    int              `json:"capacity"`
	Organizer   models.Organizer `json:"organizer"`
}

func (r CreateEventRequest) validate(network stacks.Network) error {
	switch {
	case strings.TrimSpace(r.Title) == "":
		return &status.ValidationError{Field: "title", Reason: "title is required"}
	case r.Date.IsZero():
		return &status.ValidationError{Field: "date", Reason: "date is required"}
	case r.Price.IsNegative():
		return &status.ValidationError{Field: "price", Reason: "price must not be negative"}
	case r.Capacity < 0:
		return &status.ValidationError{Field: "capacity", Reason: "capacity must not be negative"}
	}
	if err := network.ValidateAddress(r.Organizer.Address); err != nil {
		return &status.ValidationError{Field: "organizer.address", Reason: err.Error()}
	}
	return nil
}

// UploadResult carries both pins and their gateway URLs.
type UploadResult struct {
	Assets      pinata.Assets
	ImageURL    string
	MetadataURL string
}

type EventService struct {
	events  EventRepository
	pinner  pinata.Pinner
	network stacks.Network
	gateway string
	now     func() time.Time
}

func NewEventService(events EventRepository, pinner pinata.Pinner, network stacks.Network, gateway string) *EventService {
	return &EventService{
		events:  events,
		pinner:  pinner,
		network: network,
		gateway: gateway,
		now:     time.Now,
	}
}

// Create pins the image and metadata, then persists the event. Nothing is
// persisted unless both pins succeed.
func (s *EventService) Create(ctx context.Context, req CreateEventRequest, img pinata.Image) (models.Event, error) {
	if err := req.validate(s.network); err != nil {
		return models.Event{}, err
	}
	if len(img.Data) == 0 {
		return models.Event{}, &status.ValidationError{Field: "image", Reason: "image is required"}
	}

	id, err := utils.NewEventID()
	if err != nil {
		return models.Event{}, err
	}
	now := s.now().UTC()
	event := models.Event{
		ID:          id,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Date:        req.Date.UTC(),
		Location:    req.Location,
		Category:    req.Category,
		Price:       req.Price,
		Capacity:    req.Capacity,
		Organizer:   req.Organizer,
		CreatedAt:   now,
	}
	event.Status = event.StatusAt(now)

	uploaded, err := s.Upload(ctx, event, img)
	if err != nil {
		return models.Event{}, err
	}
	event.ImageURI = uploaded.Assets.ImageCID.URI()
	event.MetadataURI = uploaded.Assets.MetadataCID.URI()

	created, err := s.events.Create(ctx, event)
	if err != nil {
		return models.Event{}, fmt.Errorf("EventService.Create: %w", err)
	}
	slog.Info("event created", "id", created.ID, "metadata", created.MetadataURI)
	return created, nil
}

// Upload pins the event's assets without persisting anything.
func (s *EventService) Upload(ctx context.Context, event models.Event, img pinata.Image) (UploadResult, error) {
	assets, err := pinata.UploadEventAssets(ctx, s.pinner, event, img, s.now().UTC())
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{
		Assets:      assets,
		ImageURL:    pinata.GatewayURL(s.gateway, assets.ImageCID.URI()),
		MetadataURL: pinata.GatewayURL(s.gateway, assets.MetadataCID.URI()),
	}, nil
}

func (s *EventService) Get(ctx context.Context, id string) (models.Event, error) {
	return s.events.Get(ctx, id)
}

func (s *EventService) List(ctx context.Context, f store.EventFilter) ([]models.Event, error) {
	return s.events.List(ctx, f)
}
