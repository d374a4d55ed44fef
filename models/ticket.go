package models

import (
	"time"
)

// Ticket is the local record of a minted NFT ticket. It exists only after the
// mint transaction was observed as successful with a parsed token id.
type Ticket struct {
	TokenID             uint64     `json:"tokenId"`
	EventID             string     `json:"eventId"`
	TxID                string     `json:"txId"`
	Owner               string     `json:"owner"`
	MetadataURI         string     `json:"metadataUri"`
	ContractID          string     `json:"contractId"`
	PresenceConfirmed   bool       `json:"presenceConfirmed"`
	PresenceConfirmedAt *time.Time `json:"presenceConfirmedAt,omitempty"`
	MintedAt            time.Time  `json:"mintedAt"`
}

// NFTHolding is an on-chain holding as reported by the chain API.
type NFTHolding struct {
	AssetIdentifier string `json:"assetIdentifier"`
	TokenID         uint64 `json:"tokenId"`
	TxID            string `json:"txId"`
	BlockHeight     int64  `json:"blockHeight"`
	MetadataURI     string `json:"metadataUri,omitempty"`
}
