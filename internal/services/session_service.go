package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nft-ticket/internal/services/stacks"
	"nft-ticket/internal/status"
	"nft-ticket/internal/wallet"
	"nft-ticket/utils"
)

const DefaultSessionTTL = 24 * time.Hour

func sessionKey(id string) string { return "session:" + id }

// SessionService stores connected wallet sessions in Redis. The session value
// is handed to callers; nothing reads a current session implicitly.
type SessionService struct {
	redis   *redis.Client
	network stacks.Network
	ttl     time.Duration
	now     func() time.Time
	newID   func() (string, error)
}

func NewSessionService(redisClient *redis.Client, network stacks.Network, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{
		redis:   redisClient,
		network: network,
		ttl:     ttl,
		now:     time.Now,
		newID:   utils.NewSessionID,
	}
}

func (s *SessionService) Connect(ctx context.Context, address string) (wallet.Session, error) {
	if !s.network.HasAddressPrefix(address) {
		return wallet.Session{}, &status.ValidationError{Field: "address", Reason: "Invalid wallet address format"}
	}
	if err := s.network.ValidateAddress(address); err != nil {
		return wallet.Session{}, &status.ValidationError{Field: "address", Reason: err.Error()}
	}

	id, err := s.newID()
	if err != nil {
		return wallet.Session{}, err
	}
	sess := wallet.Session{
		ID:          id,
		Address:     address,
		Network:     s.network.Name,
		ConnectedAt: s.now().UTC(),
	}
	raw, err := json.Marshal(sess)
	if err != nil {
		return wallet.Session{}, fmt.Errorf("SessionService.Connect: json.Marshal: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(id), raw, s.ttl).Err(); err != nil {
		return wallet.Session{}, fmt.Errorf("SessionService.Connect: SET: %w", err)
	}
	return sess, nil
}

// Current returns the session for id, or status.ErrNoSession.
func (s *SessionService) Current(ctx context.Context, id string) (wallet.Session, error) {
	if !utils.IsValidSessionID(id) {
		return wallet.Session{}, status.ErrNoSession
	}
	raw, err := s.redis.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return wallet.Session{}, status.ErrNoSession
	}
	if err != nil {
		return wallet.Session{}, fmt.Errorf("SessionService.Current: %w", err)
	}
	var sess wallet.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return wallet.Session{}, fmt.Errorf("SessionService.Current: json.Unmarshal: %w", err)
	}
	return sess, nil
}

func (s *SessionService) Disconnect(ctx context.Context, id string) error {
	if !utils.IsValidSessionID(id) {
		return status.ErrNoSession
	}
	if err := s.redis.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("SessionService.Disconnect: %w", err)
	}
	return nil
}
