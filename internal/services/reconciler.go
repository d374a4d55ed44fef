package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/internal/wallet"
	"nft-ticket/models"
	"nft-ticket/monitoring"
)

type ReconcileInput struct {
	EventID     string
	Owner       string
	TxID        string
	PaymentTxID string
	// Operator marks a superuser or command-line recovery, which may take
	// over a job recorded for another owner.
	Operator bool
}

type ReconcileResult struct {
	Outcome Outcome
	Ticket  *models.Ticket
	// Duplicate is set when the tx id had already been reconciled.
	Duplicate bool
	Job       models.MintJob
}

// Reconciler turns terminal outcomes into ticket records, mint job updates and
// user notifications.
type Reconciler struct {
	events   EventRepository
	tickets  TicketRepository
	jobs     MintJobRepository
	notifier Notifier
	poller   *Poller
	contract stacks.Contract
	now      func() time.Time
}

func NewReconciler(events EventRepository, tickets TicketRepository, jobs MintJobRepository, notifier Notifier, poller *Poller, contract stacks.Contract) *Reconciler {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Reconciler{
		events:   events,
		tickets:  tickets,
		jobs:     jobs,
		notifier: notifier,
		poller:   poller,
		contract: contract,
		now:      time.Now,
	}
}

// Reconcile records the outcome. A ticket is created only for
// OutcomeSucceeded, and at most once per tx id. A successful transaction that
// is not a mint to in.Owner on the configured contract is recorded as failed.
func (r *Reconciler) Reconcile(ctx context.Context, in ReconcileInput, out Outcome) (ReconcileResult, error) {
	if out.Kind == OutcomeSucceeded || out.Kind == OutcomeSucceededUnknownResult {
		if recipient, ok := r.contract.MintRecipient(out.Call); !ok || recipient != in.Owner {
			slog.Warn("transaction is not a mint for owner", "txid", in.TxID, "owner", in.Owner, "contract", r.contract.ID())
			out = Outcome{
				Kind:    OutcomeFailed,
				TxID:    out.TxID,
				Status:  out.Status,
				Message: "Transaction is not a mint of " + r.contract.ID() + " for " + in.Owner,
			}
		}
	}

	res := ReconcileResult{Outcome: out}
	job := r.loadJob(ctx, in)
	job.Message = out.Message
	job.UpdatedAt = r.now()

	notice := map[string]any{
		"txid":    in.TxID,
		"eventId": in.EventID,
		"message": out.Message,
	}

	switch out.Kind {
	case OutcomeSucceeded:
		event, err := r.events.Get(ctx, in.EventID)
		if err != nil {
			// Keep the job visible as pending so ResumePending or a manual
			// recover picks it up again.
			job.Message = "Minted, waiting for event " + in.EventID + " to record the ticket"
			r.saveJob(ctx, job)
			res.Job = job
			return res, fmt.Errorf("Reconcile: %w", err)
		}
		ticket, created, err := r.tickets.Create(ctx, models.Ticket{
			TokenID:     out.TokenID,
			EventID:     in.EventID,
			TxID:        in.TxID,
			Owner:       in.Owner,
			MetadataURI: event.MetadataURI,
			ContractID:  r.contract.ID(),
			MintedAt:    r.now().UTC(),
		})
		if err != nil {
			return res, fmt.Errorf("Reconcile: %w", err)
		}
		monitoring.TrackTicketReconciled(!created)
		res.Ticket, res.Duplicate = &ticket, !created

		tokenID := ticket.TokenID
		job.Status, job.TokenID = models.MintStatusMinted, &tokenID
		notice["type"], notice["tokenId"] = NotifyMintSuccess, tokenID
	case OutcomeSucceededUnknownResult:
		job.Status = models.MintStatusMintedUnknownToken
		notice["type"] = NotifyMintUnknownToken
	case OutcomeAborted:
		job.Status = models.MintStatusAborted
		notice["type"] = NotifyMintFailed
		if out.HasCode {
			notice["code"] = out.Code
		}
	default:
		job.Status = models.MintStatusFailed
		notice["type"] = NotifyMintFailed
	}
	monitoring.TrackMintOutcome(out.Kind.String())

	r.saveJob(ctx, job)
	res.Job = job

	if !res.Duplicate {
		if err := r.notifier.Notify(ctx, in.Owner, notice); err != nil {
			slog.Error("r.notifier.Notify()", "owner", in.Owner, "txid", in.TxID, "error", err)
		}
	}
	return res, nil
}

// Recover polls an operator-supplied tx id to completion and reconciles it,
// without submitting anything.
func (r *Reconciler) Recover(ctx context.Context, in ReconcileInput, onPending func(PollProgress)) (ReconcileResult, error) {
	in, err := r.PrepareRecovery(ctx, in)
	if err != nil {
		return ReconcileResult{}, err
	}
	out, err := r.poller.Poll(ctx, in.TxID, onPending)
	if err != nil {
		return ReconcileResult{}, err
	}
	return r.Reconcile(ctx, in, out)
}

// PrepareRecovery validates a recovery request and records a pending job for it.
func (r *Reconciler) PrepareRecovery(ctx context.Context, in ReconcileInput) (ReconcileInput, error) {
	if strings.TrimSpace(in.TxID) == "" {
		return in, &status.ValidationError{Field: "txid", Reason: "transaction id is required"}
	}
	if in.EventID == "" {
		return in, &status.ValidationError{Field: "eventId", Reason: "event id is required"}
	}
	if in.Owner == "" {
		return in, &status.ValidationError{Field: "owner", Reason: "owner address is required"}
	}
	in.TxID = wallet.NormalizeTxID(in.TxID)
	if _, err := r.events.Get(ctx, in.EventID); err != nil {
		return in, err
	}

	job := r.loadJob(ctx, in)
	if !in.Operator && job.Owner != "" && job.Owner != in.Owner {
		return in, fmt.Errorf("recover %s: %w", in.TxID, status.ErrForbidden)
	}
	if job.Status == models.MintStatusMinted {
		return in, nil
	}
	job.Status = models.MintStatusPending
	job.Message = ""
	job.UpdatedAt = r.now()
	r.saveJob(ctx, job)
	return in, nil
}

func (r *Reconciler) saveJob(ctx context.Context, job models.MintJob) {
	if err := r.jobs.Save(ctx, job); err != nil {
		slog.Error("r.jobs.Save()", "txid", job.TxID, "error", err)
	}
}

func (r *Reconciler) loadJob(ctx context.Context, in ReconcileInput) models.MintJob {
	job, err := r.jobs.Get(ctx, in.TxID)
	if err != nil {
		if !errors.Is(err, status.ErrNotFound) {
			slog.Error("r.jobs.Get()", "txid", in.TxID, "error", err)
		}
		job = models.MintJob{
			TxID:        in.TxID,
			EventID:     in.EventID,
			Owner:       in.Owner,
			PaymentTxID: in.PaymentTxID,
			Status:      models.MintStatusPending,
		}
	}
	return job
}
