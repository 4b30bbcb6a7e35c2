package notifications

import (
	"context"

	"github.com/9ssi7/exponent"
)

// PushSender abstracts the push delivery service; the concrete sender is the
// Expo client.
type PushSender interface {
	Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error)
	PublishSingle(ctx context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error)
}

// NopSender discards every message. Used when push is not configured.
type NopSender struct{}

func (NopSender) Publish(ctx context.Context, msgs []*exponent.Message) ([]*exponent.MessageResponse, error) {
	return nil, nil
}

func (NopSender) PublishSingle(ctx context.Context, msg *exponent.Message) ([]*exponent.MessageResponse, error) {
	return nil, nil
}
