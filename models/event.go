package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventStatusUpcoming = "upcoming"
	EventStatusPast     = "past"
)

// microSTXPerSTX converts a display price into the smallest transferable unit.
var microSTXPerSTX = decimal.NewFromInt(1_000_000)

type Organizer struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Event struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Date        time.Time       `json:"date"`
	Location    string          `json:"location"`
	Category    string          `json:"category"`
	Price       decimal.Decimal `json:"price"` // STX, zero means free
	Capacity    int             `json:"capacity"`
	Organizer   Organizer       `json:"organizer"`
	MetadataURI string          `json:"metadataUri"`
	ImageURI    string          `json:"imageUri"`
	Status      string          `json:"status"` // upcoming, past
	CreatedAt   time.Time       `json:"createdAt"`
}

func (e Event) IsPaid() bool {
	return e.Price.IsPositive()
}

// PriceMicroSTX floors price × 1,000,000.
func (e Event) PriceMicroSTX() (uint64, error) {
	if e.Price.IsNegative() {
		return 0, errors.New("event price is negative")
	}
	return uint64(e.Price.Mul(microSTXPerSTX).Floor().IntPart()), nil
}

// StatusAt reports upcoming until the event date has passed.
func (e Event) StatusAt(now time.Time) string {
	if !e.Date.IsZero() && e.Date.Before(now) {
		return EventStatusPast
	}
	return EventStatusUpcoming
}
