package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nft-ticket/internal/services/pinata"
	"nft-ticket/internal/status"
	"nft-ticket/internal/wallet"
	"nft-ticket/models"
)

type PurchaseResult struct {
	TxID        string `json:"txid"`
	PaymentTxID string `json:"paymentTxId,omitempty"`
	Status      string `json:"status"`
}

type PurchaseConfig struct {
	// PaymentRecipient receives ticket payments.
	PaymentRecipient string
	// MintURIGateway, when set, rewrites ipfs:// metadata URIs onto this
	// gateway before they are written on chain.
	MintURIGateway string
}

// PurchaseService runs payment, mint and the background poll for each
// purchase. Pollers are keyed by mint tx id; at most one runs per tx id.
type PurchaseService struct {
	events     EventRepository
	jobs       MintJobRepository
	submitter  *Submitter
	poller     *Poller
	reconciler *Reconciler
	notifier   Notifier
	cfg        PurchaseConfig
	now        func() time.Time

	root    context.Context
	mu      sync.Mutex
	running map[string]*poll
	wg      sync.WaitGroup

	// jobMu orders progress writes against Cancel.
	jobMu sync.Mutex
}

type poll struct {
	cancel context.CancelFunc
}

// NewPurchaseService binds background pollers to root; cancelling it stops them all.
func NewPurchaseService(root context.Context, events EventRepository, jobs MintJobRepository, submitter *Submitter, poller *Poller, reconciler *Reconciler, notifier Notifier, cfg PurchaseConfig) *PurchaseService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &PurchaseService{
		events:     events,
		jobs:       jobs,
		submitter:  submitter,
		poller:     poller,
		reconciler: reconciler,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
		root:       root,
		running:    make(map[string]*poll),
	}
}

// Purchase pays for the event (when it is not free) through the session's
// wallet, submits the mint and starts polling it.
func (s *PurchaseService) Purchase(ctx context.Context, sess wallet.Session, eventID string) (PurchaseResult, error) {
	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return PurchaseResult{}, err
	}
	if event.MetadataURI == "" {
		return PurchaseResult{}, &status.InvalidMetadataError{}
	}

	var paymentTxID string
	if event.IsPaid() {
		amount, err := event.PriceMicroSTX()
		if err != nil {
			return PurchaseResult{}, &status.ValidationError{Field: "price", Reason: err.Error()}
		}
		paymentTxID, err = s.submitter.SubmitTransfer(ctx, sess, TransferIntent{
			Recipient: s.cfg.PaymentRecipient,
			Amount:    amount,
			Memo:      "Ticket for event " + event.ID,
		})
		if err != nil {
			return PurchaseResult{}, err
		}
	}

	txid, err := s.submitter.SubmitMint(ctx, MintIntent{
		Recipient:   sess.Address,
		MetadataURI: s.mintURI(event.MetadataURI),
	})
	if err != nil {
		if paymentTxID != "" {
			slog.Error("mint failed after payment", "event", event.ID, "payer", sess.Address, "paymentTxId", paymentTxID, "error", err)
		}
		return PurchaseResult{}, err
	}

	in := ReconcileInput{EventID: event.ID, Owner: sess.Address, TxID: txid, PaymentTxID: paymentTxID}
	job := models.MintJob{
		TxID:        txid,
		EventID:     event.ID,
		Owner:       sess.Address,
		PaymentTxID: paymentTxID,
		Status:      models.MintStatusPending,
		UpdatedAt:   s.now(),
	}
	if err := s.jobs.Save(ctx, job); err != nil {
		slog.Error("s.jobs.Save()", "txid", txid, "error", err)
	}
	s.notify(ctx, sess.Address, map[string]any{"type": NotifyMintPending, "txid": txid, "eventId": event.ID})
	s.Track(in)

	return PurchaseResult{TxID: txid, PaymentTxID: paymentTxID, Status: job.Status}, nil
}

// Recover validates a manual recovery and polls it in the background.
func (s *PurchaseService) Recover(ctx context.Context, in ReconcileInput) (models.MintJob, error) {
	in, err := s.reconciler.PrepareRecovery(ctx, in)
	if err != nil {
		return models.MintJob{}, err
	}
	s.Track(in)
	return s.Job(ctx, in.TxID)
}

// Track starts a background poller for in.TxID unless one is running. It
// reports whether a poller was started.
func (s *PurchaseService) Track(in ReconcileInput) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.running[in.TxID]; ok {
		return false
	}
	ctx, cancel := context.WithCancel(s.root)
	p := &poll{cancel: cancel}
	s.running[in.TxID] = p
	s.wg.Add(1)
	go s.run(ctx, p, in)
	return true
}

func (s *PurchaseService) run(ctx context.Context, p *poll, in ReconcileInput) {
	defer s.wg.Done()
	defer s.untrack(in.TxID, p)

	out, err := s.poller.Poll(ctx, in.TxID, func(p PollProgress) {
		s.progress(ctx, p)
	})
	if err != nil {
		// Cancelled by the user or by shutdown; the job keeps whatever
		// status Cancel wrote, or stays pending for ResumePending.
		slog.Info("polling stopped", "txid", in.TxID, "reason", err)
		return
	}

	if _, err := s.reconciler.Reconcile(context.WithoutCancel(ctx), in, out); err != nil {
		slog.Error("s.reconciler.Reconcile()", "txid", in.TxID, "error", err)
	}
}

func (s *PurchaseService) progress(ctx context.Context, p PollProgress) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	job, err := s.jobs.Get(ctx, p.TxID)
	if err != nil || job.Terminal() {
		return
	}
	job.Attempts = p.Attempt
	job.UpdatedAt = s.now()
	if err := s.jobs.Save(ctx, job); err != nil {
		slog.Error("s.jobs.Save()", "txid", p.TxID, "error", err)
	}
}

func (s *PurchaseService) untrack(txid string, p *poll) {
	p.cancel()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[txid] == p {
		delete(s.running, txid)
	}
}

// Cancel stops polling txid and marks its job cancelled. The transaction
// itself is already on the network and is not affected.
func (s *PurchaseService) Cancel(ctx context.Context, owner, txid string) (models.MintJob, error) {
	txid = wallet.NormalizeTxID(txid)
	job, err := s.jobs.Get(ctx, txid)
	if err != nil {
		return models.MintJob{}, err
	}
	if owner != "" && job.Owner != owner {
		return models.MintJob{}, status.ErrForbidden
	}

	s.mu.Lock()
	p, ok := s.running[txid]
	delete(s.running, txid)
	s.mu.Unlock()
	if !ok {
		return job, fmt.Errorf("mint %s is not being polled: %w", txid, status.ErrNotFound)
	}

	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	p.cancel()
	if current, err := s.jobs.Get(ctx, txid); err == nil {
		if current.Terminal() {
			return current, nil
		}
		job = current
	}
	job.Status = models.MintStatusCancelled
	job.Message = "Polling cancelled"
	job.UpdatedAt = s.now()
	if err := s.jobs.Save(ctx, job); err != nil {
		slog.Error("s.jobs.Save()", "txid", txid, "error", err)
	}
	return job, nil
}

func (s *PurchaseService) Job(ctx context.Context, txid string) (models.MintJob, error) {
	return s.jobs.Get(ctx, wallet.NormalizeTxID(txid))
}

// Polling reports whether a poller is running for txid.
func (s *PurchaseService) Polling(txid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[wallet.NormalizeTxID(txid)]
	return ok
}

// ResumePending restarts pollers for jobs left pending by a previous process.
func (s *PurchaseService) ResumePending(ctx context.Context) (int, error) {
	ids, err := s.jobs.Pending(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, txid := range ids {
		job, err := s.jobs.Get(ctx, txid)
		if errors.Is(err, status.ErrNotFound) {
			continue
		}
		if err != nil {
			return started, err
		}
		if job.Terminal() {
			continue
		}
		if s.Track(ReconcileInput{EventID: job.EventID, Owner: job.Owner, TxID: job.TxID, PaymentTxID: job.PaymentTxID}) {
			started++
		}
	}
	return started, nil
}

// Wait blocks until every poller has returned.
func (s *PurchaseService) Wait() {
	s.wg.Wait()
}

func (s *PurchaseService) mintURI(uri string) string {
	if s.cfg.MintURIGateway == "" {
		return uri
	}
	return pinata.GatewayURL(s.cfg.MintURIGateway, uri)
}

func (s *PurchaseService) notify(ctx context.Context, address string, msg map[string]any) {
	if err := s.notifier.Notify(ctx, address, msg); err != nil {
		slog.Error("s.notifier.Notify()", "address", address, "error", err)
	}
}

// PendingJobs lists jobs that have not reached a terminal status.
func (s *PurchaseService) PendingJobs(ctx context.Context) ([]models.MintJob, error) {
	ids, err := s.jobs.Pending(ctx)
	if err != nil {
		return nil, err
	}
	jobs := make([]models.MintJob, 0, len(ids))
	for _, txid := range ids {
		job, err := s.jobs.Get(ctx, txid)
		if errors.Is(err, status.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
