package wallet

import (
	"context"
	"fmt"

	"nft-ticket/internal/services/stacks"
)

type broadcaster interface {
	GetNonce(ctx context.Context, addr string) (uint64, error)
	Broadcast(ctx context.Context, raw []byte) (string, error)
}

// KeySigner signs transfers with a local key. It stands in for a browser
// wallet in development.
type KeySigner struct {
	account *stacks.Account
	chain   broadcaster
	fee     uint64
}

func NewKeySigner(account *stacks.Account, chain broadcaster, fee uint64) *KeySigner {
	return &KeySigner{account: account, chain: chain, fee: fee}
}

func (s *KeySigner) Address() string {
	return s.account.Address()
}

func (s *KeySigner) RequestTransfer(ctx context.Context, req TransferRequest) (string, error) {
	nonce, err := s.chain.GetNonce(ctx, s.account.Address())
	if err != nil {
		return "", fmt.Errorf("KeySigner.RequestTransfer: %w", err)
	}
	tx := s.account.NewTransaction(stacks.TokenTransfer{
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Memo:      req.Memo,
	}, nonce, s.fee)
	if err := tx.Sign(s.account); err != nil {
		return "", fmt.Errorf("KeySigner.RequestTransfer: sign: %w", err)
	}
	raw, err := tx.Serialize()
	if err != nil {
		return "", fmt.Errorf("KeySigner.RequestTransfer: serialize: %w", err)
	}
	return s.chain.Broadcast(ctx, raw)
}
