package services

import (
	"context"
	"time"

	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/store"
	"nft-ticket/models"
)

// The interfaces below are the slices of *stacks.Client and the stores that
// each service depends on.

type TxFetcher interface {
	GetTransaction(ctx context.Context, txid string) (*stacks.Tx, error)
}

type TxSender interface {
	GetNonce(ctx context.Context, addr string) (uint64, error)
	Broadcast(ctx context.Context, raw []byte) (string, error)
}

type TxHistory interface {
	LatestTransaction(ctx context.Context, addr string) (*stacks.Tx, error)
}

type TokenReader interface {
	Owner(ctx context.Context, c stacks.Contract, tokenID uint64) (string, bool, error)
	TokenURI(ctx context.Context, c stacks.Contract, tokenID uint64) (string, bool, error)
	NFTHoldings(ctx context.Context, principal string) ([]stacks.Holding, error)
	STXBalance(ctx context.Context, addr string) (stacks.Balance, error)
}

type EventRepository interface {
	Create(ctx context.Context, e models.Event) (models.Event, error)
	Get(ctx context.Context, id string) (models.Event, error)
	List(ctx context.Context, f store.EventFilter) ([]models.Event, error)
}

type TicketRepository interface {
	Create(ctx context.Context, t models.Ticket) (models.Ticket, bool, error)
	GetByTx(ctx context.Context, txid string) (models.Ticket, error)
	GetByToken(ctx context.Context, contractID string, tokenID uint64) (models.Ticket, error)
	ListByOwner(ctx context.Context, owner string) ([]models.Ticket, error)
	ConfirmPresence(ctx context.Context, txid string, at time.Time) (models.Ticket, error)
}

type MintJobRepository interface {
	Save(ctx context.Context, j models.MintJob) error
	Get(ctx context.Context, txid string) (models.MintJob, error)
	Pending(ctx context.Context) ([]string, error)
}
