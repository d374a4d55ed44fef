package models

import (
	"time"
)

type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

type MetadataProperties struct {
	EventID     string `json:"eventId"`
	EventStatus string `json:"eventStatus"`
	IsPaid      bool   `json:"isPaid"`
	CreatedAt   string `json:"createdAt"`
}

// NFTMetadata is the JSON document pinned for every event and referenced by
// each minted ticket's token URI.
type NFTMetadata struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Image       string             `json:"image"`
	Attributes  []Attribute        `json:"attributes"`
	Properties  MetadataProperties `json:"properties"`
}

func NewNFTMetadata(e Event, imageURI string, now time.Time) NFTMetadata {
	return NFTMetadata{
		Name:        e.Title,
		Description: e.Description,
		Image:       imageURI,
		Attributes: []Attribute{
			{TraitType: "Event Date", Value: e.Date.Format(time.RFC3339)},
			{TraitType: "Location", Value: e.Location},
			{TraitType: "Category", Value: e.Category},
			{TraitType: "Organizer", Value: e.Organizer.Name},
			{TraitType: "Price", Value: e.Price.String()},
			{TraitType: "Ticket Type", Value: "Standard"},
		},
		Properties: MetadataProperties{
			EventID:     e.ID,
			EventStatus: e.Status,
			IsPaid:      e.IsPaid(),
			CreatedAt:   now.UTC().Format(time.RFC3339),
		},
	}
}
