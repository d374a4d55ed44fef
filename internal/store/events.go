package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
	"github.com/shopspring/decimal"

	"nft-ticket/internal/status"
	"nft-ticket/models"
)

const EventsCollection = "events"

// EventStore keeps event listings in the PocketBase "events" collection.
type EventStore struct {
	app core.App
}

func NewEventStore(app core.App) *EventStore {
	return &EventStore{app: app}
}

func (s *EventStore) Create(ctx context.Context, e models.Event) (models.Event, error) {
	collection, err := s.app.FindCollectionByNameOrId(EventsCollection)
	if err != nil {
		return models.Event{}, fmt.Errorf("EventStore.Create: %w", err)
	}
	record := core.NewRecord(collection)
	eventToRecord(e, record)
	if err := s.app.SaveWithContext(ctx, record); err != nil {
		return models.Event{}, fmt.Errorf("EventStore.Create: save: %w", err)
	}
	return recordToEvent(record), nil
}

func (s *EventStore) Get(ctx context.Context, id string) (models.Event, error) {
	record, err := s.app.FindRecordById(EventsCollection, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, fmt.Errorf("event %s: %w", id, status.ErrNotFound)
	}
	if err != nil {
		return models.Event{}, fmt.Errorf("EventStore.Get: %w", err)
	}
	return recordToEvent(record), nil
}

type EventFilter struct {
	Organizer string
	Status    string
	Limit     int
}

// List returns events newest date first.
func (s *EventStore) List(ctx context.Context, f EventFilter) ([]models.Event, error) {
	filter := "id != ''"
	params := dbx.Params{}
	if f.Organizer != "" {
		filter += " && organizer_address = {:organizer}"
		params["organizer"] = f.Organizer
	}
	if f.Status != "" {
		filter += " && status = {:status}"
		params["status"] = f.Status
	}
	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	records, err := s.app.FindRecordsByFilter(EventsCollection, filter, "-date", limit, 0, params)
	if err != nil {
		return nil, fmt.Errorf("EventStore.List: %w", err)
	}
	events := make([]models.Event, 0, len(records))
	for _, r := range records {
		events = append(events, recordToEvent(r))
	}
	return events, nil
}

// MarkPast flips upcoming events whose date has passed. It returns the
// number of records updated.
func (s *EventStore) MarkPast(ctx context.Context, now time.Time) (int, error) {
	records, err := s.app.FindAllRecords(EventsCollection,
		dbx.HashExp{"status": models.EventStatusUpcoming},
		dbx.NewExp("date < {:now}", dbx.Params{"now": now.UTC().Format(types.DefaultDateLayout)}),
	)
	if err != nil {
		return 0, fmt.Errorf("EventStore.MarkPast: %w", err)
	}
	for _, r := range records {
		r.Set("status", models.EventStatusPast)
		if err := s.app.SaveWithContext(ctx, r); err != nil {
			return 0, fmt.Errorf("EventStore.MarkPast: save %s: %w", r.Id, err)
		}
	}
	return len(records), nil
}

func eventToRecord(e models.Event, r *core.Record) {
	if e.ID != "" {
		r.Id = e.ID
	}
	r.Set("title", e.Title)
	r.Set("description", e.Description)
	r.Set("date", e.Date)
	r.Set("location", e.Location)
	r.Set("category", e.Category)
	r.Set("price", e.Price.String())
	r.Set("capacity", e.Capacity)
	r.Set("organizer_name", e.Organizer.Name)
	r.Set("organizer_address", e.Organizer.Address)
	r.Set("metadata_uri", e.MetadataURI)
	r.Set("image_uri", e.ImageURI)
	r.Set("status", e.Status)
}

func recordToEvent(r *core.Record) models.Event {
	price, err := decimal.NewFromString(r.GetString("price"))
	if err != nil {
		price = decimal.Zero
	}
	return models.Event{
		ID:          r.Id,
		Title:       r.GetString("title"),
		Description: r.GetString("description"),
		Date:        r.GetDateTime("date").Time(),
		Location:    r.GetString("location"),
		Category:    r.GetString("category"),
		Price:       price,
		Capacity:    r.GetInt("capacity"),
		Organizer: models.Organizer{
			Name:    r.GetString("organizer_name"),
			Address: r.GetString("organizer_address"),
		},
		MetadataURI: r.GetString("metadata_uri"),
		ImageURI:    r.GetString("image_uri"),
		Status:      r.GetString("status"),
		CreatedAt:   r.GetDateTime("created").Time(),
	}
}
