package wallet

import (
	"context"
	"strings"
	"time"

	"nft-ticket/internal/status"
)

// Session is the connected wallet of one client. It is passed explicitly to
// the operations that act on behalf of the user.
type Session struct {
	ID          string    `json:"id"`
	Address     string    `json:"address"`
	Network     string    `json:"network"`
	ConnectedAt time.Time `json:"connectedAt"`

	// Signer is attached per request and never persisted.
	Signer Signer `json:"-"`
}

type TransferRequest struct {
	Recipient string
	Amount    uint64 // micro-STX
	Memo      string
}

// Signer asks the wallet behind a session to sign and broadcast a transfer.
// A cancellation must be reported as *status.UserRejectedError.
type Signer interface {
	RequestTransfer(ctx context.Context, req TransferRequest) (string, error)
}

// ReportedSigner replays the outcome the browser wallet already reported to
// the client: either a tx id or the wallet's error text.
type ReportedSigner struct {
	TxID  string
	Error string
}

func (s ReportedSigner) RequestTransfer(_ context.Context, _ TransferRequest) (string, error) {
	if s.Error != "" {
		return "", &status.UserRejectedError{Reason: s.Error}
	}
	txid := strings.TrimSpace(s.TxID)
	if txid == "" {
		return "", &status.UserRejectedError{Reason: "wallet returned no transaction id"}
	}
	return NormalizeTxID(txid), nil
}

// NormalizeTxID lower-cases a tx id and adds the 0x prefix.
func NormalizeTxID(txid string) string {
	txid = strings.ToLower(strings.TrimSpace(txid))
	if !strings.HasPrefix(txid, "0x") {
		txid = "0x" + txid
	}
	return txid
}
