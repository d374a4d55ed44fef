package models

import (
	"time"
)

const (
	MintStatusPending            = "pending"
	MintStatusMinted             = "minted"
	MintStatusMintedUnknownToken = "minted_unknown_token"
	MintStatusAborted            = "aborted"
	MintStatusFailed             = "failed"
	MintStatusCancelled          = "cancelled"
)

// MintJob tracks one mint transaction from broadcast to reconciliation.
type MintJob struct {
	TxID        string    `json:"txid"`
	EventID     string    `json:"eventId"`
	Owner       string    `json:"owner"`
	PaymentTxID string    `json:"paymentTxId,omitempty"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	TokenID     *uint64   `json:"tokenId,omitempty"`
	Attempts    int       `json:"attempts"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (j MintJob) Terminal() bool {
	switch j.Status {
	case MintStatusPending, "":
		return false
	}
	return true
}
