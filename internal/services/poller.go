package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nft-ticket/internal/clarity"
	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/monitoring"
)

const DefaultPollInterval = 5 * time.Second

// Chain transaction statuses the poller distinguishes.
const (
	TxStatusPending         = "pending"
	TxStatusSuccess         = "success"
	TxStatusAbortByResponse = "abort_by_response"
)

type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota
	// OutcomeSucceededUnknownResult is a successful transaction whose result
	// did not carry a token id. No id is ever guessed for it.
	OutcomeSucceededUnknownResult
	OutcomeAborted
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSucceededUnknownResult:
		return "succeeded_unknown_result"
	case OutcomeAborted:
		return "aborted"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Outcome is the terminal state of one transaction.
type Outcome struct {
	Kind    OutcomeKind
	TxID    string
	Status  string // raw tx_status, or "api_error"
	TokenID uint64 // OutcomeSucceeded only
	Code    uint64 // OutcomeAborted with HasCode
	HasCode bool
	Message string
	// Call is the contract call the success kinds were observed on.
	Call *stacks.TxContractCall
}

// Err returns the failure as a typed error, or nil for the success kinds.
func (o Outcome) Err() error {
	switch o.Kind {
	case OutcomeAborted:
		return &status.ContractAbortError{Code: o.Code, Message: o.Message}
	case OutcomeFailed:
		return &status.UnknownFailureError{Status: o.Status, Message: o.Message}
	}
	return nil
}

// PollProgress is reported for every non-terminal observation.
type PollProgress struct {
	TxID    string
	Attempt int
	Status  string
}

// Poller resolves a tx id to a terminal Outcome by querying the status API at
// a fixed interval. Only the caller's context ends a poll early.
type Poller struct {
	chain    TxFetcher
	interval time.Duration
}

func NewPoller(chain TxFetcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{chain: chain, interval: interval}
}

func (p *Poller) Poll(ctx context.Context, txid string, onPending func(PollProgress)) (Outcome, error) {
	monitoring.PollerStarted()
	defer monitoring.PollerStopped()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return Outcome{}, ctx.Err()
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}

		monitoring.TrackPollAttempt()
		observed, out, done := p.check(ctx, txid)
		if done {
			return out, nil
		}
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		if onPending != nil {
			onPending(PollProgress{TxID: txid, Attempt: attempt, Status: observed})
		}
		timer.Reset(p.interval)
	}
}

// check runs one status query. done is false for anything that should be
// retried: pending, not yet propagated, and transient errors.
func (p *Poller) check(ctx context.Context, txid string) (observed string, out Outcome, done bool) {
	tx, err := p.chain.GetTransaction(ctx, txid)
	if err == nil {
		if tx.TxStatus == TxStatusPending {
			return TxStatusPending, Outcome{}, false
		}
		return tx.TxStatus, classify(txid, tx), true
	}

	var apiErr *stacks.APIError
	switch {
	case errors.Is(err, stacks.ErrTxNotFound):
		return "not_found", Outcome{}, false
	case errors.As(err, &apiErr):
		return "api_error", Outcome{
			Kind:    OutcomeFailed,
			TxID:    txid,
			Status:  "api_error",
			Message: fmt.Sprintf("API error: %d", apiErr.StatusCode),
		}, true
	}
	if !errors.Is(err, context.Canceled) {
		slog.Warn("p.chain.GetTransaction()", "txid", txid, "error", err)
	}
	return "error", Outcome{}, false
}

func classify(txid string, tx *stacks.Tx) Outcome {
	resp, parsed := txResponse(tx)
	switch tx.TxStatus {
	case TxStatusSuccess:
		if parsed && resp.Ok {
			if id, ok := resp.UInt(); ok {
				return Outcome{
					Kind:    OutcomeSucceeded,
					TxID:    txid,
					Status:  tx.TxStatus,
					TokenID: id,
					Message: fmt.Sprintf("NFT #%d minted successfully!", id),
					Call:    tx.ContractCall,
				}
			}
		}
		return Outcome{
			Kind:    OutcomeSucceededUnknownResult,
			TxID:    txid,
			Status:  tx.TxStatus,
			Message: "NFT minted successfully!",
			Call:    tx.ContractCall,
		}
	case TxStatusAbortByResponse:
		out := Outcome{
			Kind:    OutcomeAborted,
			TxID:    txid,
			Status:  tx.TxStatus,
			Message: "Minting transaction failed: aborted by contract",
		}
		if parsed && !resp.Ok {
			if code, ok := resp.UInt(); ok {
				out.Code, out.HasCode = code, true
				out.Message = status.ContractErrorMessage(code)
			}
		}
		return out
	}
	return Outcome{
		Kind:    OutcomeFailed,
		TxID:    txid,
		Status:  tx.TxStatus,
		Message: "Minting transaction failed: " + tx.TxStatus,
	}
}

// txResponse reads the result as a response value, preferring repr and
// falling back to the hex encoding.
func txResponse(tx *stacks.Tx) (clarity.Response, bool) {
	if tx.TxResult == nil {
		return clarity.Response{}, false
	}
	if tx.TxResult.Repr != "" {
		if r, err := clarity.ParseResponse(tx.TxResult.Repr); err == nil {
			return r, true
		}
	}
	if tx.TxResult.Hex != "" {
		v, err := clarity.DecodeHex(tx.TxResult.Hex)
		if err != nil {
			return clarity.Response{}, false
		}
		if r, err := clarity.ResponseOf(v); err == nil {
			return r, true
		}
	}
	return clarity.Response{}, false
}
