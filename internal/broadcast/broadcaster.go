// Package broadcast fans campaign state transitions out to observers. The
// publisher is the single writer per campaign, so subscribers see transitions
// in commit order; an optional sink forwards every transition to observers in
// other processes.
package broadcast

import (
	"context"
	"sync"

	"adpilot/internal/store"

	"go.uber.org/zap"
)

// subscriberBuffer bounds how far a subscriber may lag before it is dropped.
// Dropping (rather than skipping updates) keeps the ordered-sequence guarantee
// for everyone still attached.
const subscriberBuffer = 32

// Sink receives every transition for out-of-process observers.
type Sink interface {
	Send(ctx context.Context, campaign *store.Campaign) error
}

type subscriber struct {
	ch chan *store.Campaign
}

type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int64]map[*subscriber]struct{}
	sink   Sink
	logger *zap.SugaredLogger
}

type Option func(*Broadcaster)

func WithSink(s Sink) Option {
	return func(b *Broadcaster) { b.sink = s }
}

func New(logger *zap.SugaredLogger, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		subs:   make(map[int64]map[*subscriber]struct{}),
		logger: logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers an observer for one campaign. The returned cancel func
// releases the subscription and closes the channel; it is safe to call twice.
func (b *Broadcaster) Subscribe(campaignID int64) (<-chan *store.Campaign, func()) {
	sub := &subscriber{ch: make(chan *store.Campaign, subscriberBuffer)}

	b.mu.Lock()
	if b.subs[campaignID] == nil {
		b.subs[campaignID] = make(map[*subscriber]struct{})
	}
	b.subs[campaignID][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.remove(campaignID, sub)
			close(sub.ch)
		})
	}

	return sub.ch, cancel
}

// Publish delivers the transition to every subscriber of the campaign. A
// subscriber whose buffer is full is detached instead of receiving a gap.
func (b *Broadcaster) Publish(campaign *store.Campaign) {
	b.mu.Lock()
	var stale []*subscriber
	for sub := range b.subs[campaign.ID] {
		select {
		case sub.ch <- campaign:
		default:
			stale = append(stale, sub)
		}
	}
	for _, sub := range stale {
		delete(b.subs[campaign.ID], sub)
		close(sub.ch)
	}
	b.mu.Unlock()

	if len(stale) > 0 {
		b.logger.Warnw("dropped slow campaign subscribers",
			"campaign_id", campaign.ID, "count", len(stale))
	}

	if b.sink != nil {
		if err := b.sink.Send(context.Background(), campaign); err != nil {
			b.logger.Errorw("broadcast sink send failed",
				"campaign_id", campaign.ID, "error", err)
		}
	}
}

func (b *Broadcaster) remove(campaignID int64, sub *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.subs[campaignID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, campaignID)
		}
	}
}
