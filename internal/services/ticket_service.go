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
)

type TicketService struct {
	tickets  TicketRepository
	chain    TokenReader
	contract stacks.Contract
	now      func() time.Time
}

func NewTicketService(tickets TicketRepository, chain TokenReader, contract stacks.Contract) *TicketService {
	return &TicketService{tickets: tickets, chain: chain, contract: contract, now: time.Now}
}

func (s *TicketService) Owned(ctx context.Context, owner string) ([]models.Ticket, error) {
	return s.tickets.ListByOwner(ctx, owner)
}

// ConfirmPresence flags the ticket as used by its owner. Ownership is checked
// against get-owner when the chain API answers; on a network error the local
// record decides.
func (s *TicketService) ConfirmPresence(ctx context.Context, sess wallet.Session, tokenID uint64) (models.Ticket, error) {
	if sess.Address == "" {
		return models.Ticket{}, status.ErrNoSession
	}
	ticket, err := s.tickets.GetByToken(ctx, s.contract.ID(), tokenID)
	if err != nil {
		return models.Ticket{}, err
	}
	if ticket.Owner != sess.Address {
		return models.Ticket{}, status.ErrForbidden
	}

	owner, minted, err := s.chain.Owner(ctx, s.contract, tokenID)
	switch {
	case errors.Is(err, status.ErrNetwork):
		slog.Warn("s.chain.Owner()", "tokenId", tokenID, "error", err)
	case err != nil:
		return models.Ticket{}, fmt.Errorf("ConfirmPresence: %w", err)
	case !minted:
		return models.Ticket{}, fmt.Errorf("token %d: %w", tokenID, status.ErrNotFound)
	case owner != sess.Address:
		return models.Ticket{}, status.ErrForbidden
	}

	return s.tickets.ConfirmPresence(ctx, ticket.TxID, s.now())
}

type Wallet struct {
	Address  string              `json:"address"`
	Balance  uint64              `json:"balance"`
	Locked   uint64              `json:"locked"`
	Holdings []models.NFTHolding `json:"nfts"`
}

// Holdings lists the on-chain NFTs of address. Tokens of the ticket contract
// get their metadata URI resolved through get-token-uri.
func (s *TicketService) Holdings(ctx context.Context, address string) (Wallet, error) {
	raw, err := s.chain.NFTHoldings(ctx, address)
	if err != nil {
		return Wallet{}, err
	}
	w := Wallet{Address: address, Holdings: make([]models.NFTHolding, 0, len(raw))}

	prefix := s.contract.ID() + "::"
	for _, h := range raw {
		holding := models.NFTHolding{
			AssetIdentifier: h.AssetIdentifier,
			TxID:            h.TxID,
			BlockHeight:     h.BlockHeight,
		}
		id, ok := h.Value.Uint64()
		if ok {
			holding.TokenID = id
		}
		if ok && strings.HasPrefix(h.AssetIdentifier, prefix) {
			uri, found, err := s.chain.TokenURI(ctx, s.contract, id)
			if err != nil {
				slog.Warn("s.chain.TokenURI()", "tokenId", id, "error", err)
			} else if found {
				holding.MetadataURI = uri
			}
		}
		w.Holdings = append(w.Holdings, holding)
	}

	balance, err := s.chain.STXBalance(ctx, address)
	if err != nil {
		slog.Warn("s.chain.STXBalance()", "address", address, "error", err)
	} else {
		w.Balance, w.Locked = balance.Balance, balance.Locked
	}
	return w, nil
}
