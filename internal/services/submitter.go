package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/internal/wallet"
)

const (
	MaxMetadataURILength = 256
	DefaultRecencyWindow = 5 * time.Minute
)

// SanitizeMetadataURI keeps printable ASCII only and truncates to 256 bytes.
func SanitizeMetadataURI(raw string) (string, error) {
	out := make([]byte, 0, min(len(raw), MaxMetadataURILength))
	for i := 0; i < len(raw) && len(out) < MaxMetadataURILength; i++ {
		if c := raw[i]; c >= 0x20 && c <= 0x7e {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return "", &status.InvalidMetadataError{Raw: raw}
	}
	return string(out), nil
}

type MintIntent struct {
	Recipient   string
	MetadataURI string
}

type TransferIntent struct {
	Recipient string
	Amount    uint64 // micro-STX
	Memo      string
}

// ChainSubmitter is what the Submitter needs from the chain API.
type ChainSubmitter interface {
	TxSender
	TxHistory
}

type SubmitterConfig struct {
	Network  stacks.Network
	Contract stacks.Contract
	// Account is the contract owner key; nil when STACKS_PRIVATE_KEY is unset.
	Account       *stacks.Account
	Fee           uint64
	RecencyWindow time.Duration
}

// Submitter turns mint and payment intents into broadcast transactions. It
// never retries a submission.
type Submitter struct {
	chain         ChainSubmitter
	network       stacks.Network
	contract      stacks.Contract
	account       *stacks.Account
	fee           uint64
	recencyWindow time.Duration
	now           func() time.Time
}

func NewSubmitter(chain ChainSubmitter, cfg SubmitterConfig) *Submitter {
	window := cfg.RecencyWindow
	if window <= 0 {
		window = DefaultRecencyWindow
	}
	return &Submitter{
		chain:         chain,
		network:       cfg.Network,
		contract:      cfg.Contract,
		account:       cfg.Account,
		fee:           cfg.Fee,
		recencyWindow: window,
		now:           time.Now,
	}
}

func (s *Submitter) Contract() stacks.Contract {
	return s.contract
}

func (s *Submitter) Network() stacks.Network {
	return s.network
}

// SubmitMint signs mint(recipient, uri) with the server key and broadcasts it.
func (s *Submitter) SubmitMint(ctx context.Context, in MintIntent) (string, error) {
	if err := s.network.ValidateAddress(in.Recipient); err != nil {
		return "", &status.ValidationError{Field: "userAddress", Reason: "Invalid user address format"}
	}
	if s.account == nil {
		return "", status.ErrMissingSigningKey
	}
	uri, err := SanitizeMetadataURI(in.MetadataURI)
	if err != nil {
		return "", err
	}

	call, err := s.contract.MintCall(in.Recipient, uri)
	if err != nil {
		return "", &status.ValidationError{Field: "userAddress", Reason: err.Error()}
	}

	sender := s.account.Address()
	nonce, err := s.chain.GetNonce(ctx, sender)
	if err != nil {
		return "", fmt.Errorf("SubmitMint: %w", err)
	}

	tx := s.account.NewTransaction(call, nonce, s.fee)
	if err := tx.Sign(s.account); err != nil {
		return "", fmt.Errorf("SubmitMint: sign: %w", err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		return "", fmt.Errorf("SubmitMint: serialize: %w", err)
	}

	txid, err := s.chain.Broadcast(ctx, raw)
	if err != nil {
		return "", err
	}
	slog.Info("mint broadcast", "txid", txid, "recipient", in.Recipient, "contract", s.contract.ID(), "nonce", nonce)
	return txid, nil
}

// SubmitTransfer asks the session's wallet to pay. A rejection is not taken at
// face value: the sender's latest transaction is checked first and returned
// when it falls inside the recency window.
func (s *Submitter) SubmitTransfer(ctx context.Context, sess wallet.Session, in TransferIntent) (string, error) {
	if sess.Address == "" || sess.Signer == nil {
		return "", status.ErrNoSession
	}
	if err := s.network.ValidateAddress(in.Recipient); err != nil {
		return "", &status.ValidationError{Field: "recipient", Reason: err.Error()}
	}

	txid, err := sess.Signer.RequestTransfer(ctx, wallet.TransferRequest{
		Recipient: in.Recipient,
		Amount:    in.Amount,
		Memo:      in.Memo,
	})
	if err == nil {
		return txid, nil
	}
	if !errors.Is(err, status.ErrUserRejected) {
		return "", err
	}

	found, lookupErr := s.recentTransfer(ctx, sess.Address, in)
	if lookupErr != nil {
		slog.Warn("s.recentTransfer()", "address", sess.Address, "error", lookupErr)
		return "", err
	}
	if found == "" {
		return "", err
	}
	slog.Info("wallet rejection overridden by recent transaction", "address", sess.Address, "txid", found)
	return found, nil
}

func (s *Submitter) recentTransfer(ctx context.Context, sender string, in TransferIntent) (string, error) {
	tx, err := s.chain.LatestTransaction(ctx, sender)
	if err != nil || tx == nil {
		return "", err
	}
	ts, ok := tx.Time()
	if !ok || s.now().Sub(ts) >= s.recencyWindow {
		return "", nil
	}
	if tx.TokenTransfer != nil && tx.TokenTransfer.RecipientAddress != in.Recipient {
		return "", nil
	}
	return wallet.NormalizeTxID(tx.TxID), nil
}
