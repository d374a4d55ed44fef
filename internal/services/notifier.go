package services

import (
	"context"
	"fmt"

	pubnub "github.com/pubnub/go/v7"
)

// Notification types published to a user's channel.
const (
	NotifyMintSuccess      = "mint_success"
	NotifyMintUnknownToken = "mint_unknown_token"
	NotifyMintFailed       = "mint_failed"
	NotifyMintPending      = "mint_pending"
)

type Notifier interface {
	Notify(ctx context.Context, address string, message map[string]any) error
}

func UserChannel(address string) string {
	return fmt.Sprintf("user-%s", address)
}

type PubNubNotifier struct {
	pn *pubnub.PubNub
}

func NewPubNubNotifier(pn *pubnub.PubNub) *PubNubNotifier {
	return &PubNubNotifier{pn: pn}
}

func (n *PubNubNotifier) Notify(_ context.Context, address string, message map[string]any) error {
	_, _, err := n.pn.Publish().
		Channel(UserChannel(address)).
		Message(message).
		Execute()
	if err != nil {
		return fmt.Errorf("pubnub publish: %w", err)
	}
	return nil
}

// NopNotifier is used when no PubNub keys are configured.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, string, map[string]any) error { return nil }
