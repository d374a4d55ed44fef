package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"nft-ticket/internal/status"
	"nft-ticket/models"
	"nft-ticket/monitoring"
)

const mintJobTTL = 30 * 24 * time.Hour

func mintJobKey(txid string) string { return "mint:" + txid }

// MintJobStore keeps per-transaction progress for status polling by clients.
// Non-terminal jobs are also members of monitoring.PendingMintsKey.
type MintJobStore struct {
	redis *redis.Client
}

func NewMintJobStore(redisClient *redis.Client) *MintJobStore {
	return &MintJobStore{redis: redisClient}
}

func (s *MintJobStore) Save(ctx context.Context, j models.MintJob) error {
	key := mintJobKey(j.TxID)
	tokenID := ""
	if j.TokenID != nil {
		tokenID = strconv.FormatUint(*j.TokenID, 10)
	}

	err := s.redis.HSet(ctx, key,
		"txid", j.TxID,
		"event_id", j.EventID,
		"owner", j.Owner,
		"payment_txid", j.PaymentTxID,
		"status", j.Status,
		"message", j.Message,
		"token_id", tokenID,
		"attempts", j.Attempts,
		"updated_at", j.UpdatedAt.UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("MintJobStore.Save: HSET: %w", err)
	}
	if err := s.redis.Expire(ctx, key, mintJobTTL).Err(); err != nil {
		return fmt.Errorf("MintJobStore.Save: EXPIRE: %w", err)
	}

	if j.Terminal() {
		err = s.redis.SRem(ctx, monitoring.PendingMintsKey, j.TxID).Err()
	} else {
		err = s.redis.SAdd(ctx, monitoring.PendingMintsKey, j.TxID).Err()
	}
	if err != nil {
		return fmt.Errorf("MintJobStore.Save: pending set: %w", err)
	}
	return nil
}

func (s *MintJobStore) Get(ctx context.Context, txid string) (models.MintJob, error) {
	data, err := s.redis.HGetAll(ctx, mintJobKey(txid)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.MintJob{}, fmt.Errorf("MintJobStore.Get: %w", err)
	}
	if len(data) == 0 {
		return models.MintJob{}, fmt.Errorf("mint job %s: %w", txid, status.ErrNotFound)
	}

	j := models.MintJob{
		TxID:        data["txid"],
		EventID:     data["event_id"],
		Owner:       data["owner"],
		PaymentTxID: data["payment_txid"],
		Status:      data["status"],
		Message:     data["message"],
	}
	if v, err := strconv.ParseUint(data["token_id"], 10, 64); err == nil {
		j.TokenID = &v
	}
	j.Attempts, _ = strconv.Atoi(data["attempts"])
	j.UpdatedAt, _ = time.Parse(time.RFC3339Nano, data["updated_at"])
	return j, nil
}

// Pending lists tx ids of jobs that have not reached a terminal state.
func (s *MintJobStore) Pending(ctx context.Context) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, monitoring.PendingMintsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("MintJobStore.Pending: %w", err)
	}
	return ids, nil
}
