package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"nft-ticket/internal/status"
	"nft-ticket/models"
)

func ticketTxKey(txid string) string     { return "ticket:tx:" + txid }
func ticketOwnerKey(owner string) string { return "tickets:owner:" + owner }
func ticketTokenKey(contractID string, id uint64) string {
	return "ticket:token:" + contractID + ":" + strconv.FormatUint(id, 10)
}

// TicketStore persists ticket records in Redis, keyed by mint transaction id.
// The tx-id key is written with SETNX, so a transaction reconciled twice (or
// concurrently) yields exactly one record.
type TicketStore struct {
	redis *redis.Client
}

func NewTicketStore(redisClient *redis.Client) *TicketStore {
	return &TicketStore{redis: redisClient}
}

// Create inserts t unless a record for t.TxID exists, in which case the
// existing record is returned with created=false. The owner and token indexes
// are written on both paths, so a retry after a failed index write repairs them.
func (s *TicketStore) Create(ctx context.Context, t models.Ticket) (models.Ticket, bool, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return models.Ticket{}, false, fmt.Errorf("TicketStore.Create: json.Marshal: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, ticketTxKey(t.TxID), raw, 0).Result()
	if err != nil {
		return models.Ticket{}, false, fmt.Errorf("TicketStore.Create: SETNX: %w", err)
	}
	if !ok {
		existing, err := s.GetByTx(ctx, t.TxID)
		if err != nil {
			return models.Ticket{}, false, err
		}
		if err := s.index(ctx, existing); err != nil {
			return models.Ticket{}, false, err
		}
		return existing, false, nil
	}

	if err := s.index(ctx, t); err != nil {
		return models.Ticket{}, false, err
	}
	return t, true, nil
}

func (s *TicketStore) index(ctx context.Context, t models.Ticket) error {
	if err := s.redis.SAdd(ctx, ticketOwnerKey(t.Owner), t.TxID).Err(); err != nil {
		return fmt.Errorf("TicketStore.Create: SADD: %w", err)
	}
	if err := s.redis.Set(ctx, ticketTokenKey(t.ContractID, t.TokenID), t.TxID, 0).Err(); err != nil {
		return fmt.Errorf("TicketStore.Create: SET token: %w", err)
	}
	return nil
}

func (s *TicketStore) GetByTx(ctx context.Context, txid string) (models.Ticket, error) {
	raw, err := s.redis.Get(ctx, ticketTxKey(txid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Ticket{}, fmt.Errorf("ticket for tx %s: %w", txid, status.ErrNotFound)
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("TicketStore.GetByTx: %w", err)
	}
	var t models.Ticket
	if err := json.Unmarshal(raw, &t); err != nil {
		return models.Ticket{}, fmt.Errorf("TicketStore.GetByTx: json.Unmarshal: %w", err)
	}
	return t, nil
}

func (s *TicketStore) GetByToken(ctx context.Context, contractID string, tokenID uint64) (models.Ticket, error) {
	txid, err := s.redis.Get(ctx, ticketTokenKey(contractID, tokenID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.Ticket{}, fmt.Errorf("ticket %d: %w", tokenID, status.ErrNotFound)
	}
	if err != nil {
		return models.Ticket{}, fmt.Errorf("TicketStore.GetByToken: %w", err)
	}
	return s.GetByTx(ctx, txid)
}

func (s *TicketStore) ListByOwner(ctx context.Context, owner string) ([]models.Ticket, error) {
	txids, err := s.redis.SMembers(ctx, ticketOwnerKey(owner)).Result()
	if err != nil {
		return nil, fmt.Errorf("TicketStore.ListByOwner: SMEMBERS: %w", err)
	}
	if len(txids) == 0 {
		return []models.Ticket{}, nil
	}

	keys := make([]string, len(txids))
	for i, id := range txids {
		keys[i] = ticketTxKey(id)
	}
	values, err := s.redis.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("TicketStore.ListByOwner: MGET: %w", err)
	}

	tickets := make([]models.Ticket, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var t models.Ticket
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, fmt.Errorf("TicketStore.ListByOwner: json.Unmarshal: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, nil
}

// ConfirmPresence sets the presence flag. Confirming twice keeps the first timestamp.
func (s *TicketStore) ConfirmPresence(ctx context.Context, txid string, at time.Time) (models.Ticket, error) {
	t, err := s.GetByTx(ctx, txid)
	if err != nil {
		return models.Ticket{}, err
	}
	if t.PresenceConfirmed {
		return t, nil
	}
	t.PresenceConfirmed = true
	at = at.UTC()
	t.PresenceConfirmedAt = &at

	raw, err := json.Marshal(t)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("TicketStore.ConfirmPresence: json.Marshal: %w", err)
	}
	if err := s.redis.Set(ctx, ticketTxKey(txid), raw, 0).Err(); err != nil {
		return models.Ticket{}, fmt.Errorf("TicketStore.ConfirmPresence: SET: %w", err)
	}
	return t, nil
}
