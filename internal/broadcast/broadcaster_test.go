package broadcast

import (
	"context"
	"testing"
	"time"

	"adpilot/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func campaignAt(id int64, status string) *store.Campaign {
	return &store.Campaign{ID: id, Status: status}
}

func collect(t *testing.T, ch <-chan *store.Campaign, n int) []string {
	t.Helper()
	var statuses []string
	for i := 0; i < n; i++ {
		select {
		case c := <-ch:
			statuses = append(statuses, c.Status)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for update %d", i)
		}
	}
	return statuses
}

func TestSubscribersSeeTransitionsInOrder(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	first, cancelFirst := b.Subscribe(1)
	second, cancelSecond := b.Subscribe(1)
	defer cancelFirst()
	defer cancelSecond()

	sequence := []string{
		store.CampaignStatusCampaignCreated,
		store.CampaignStatusAdSetCreated,
		store.CampaignStatusCompleted,
	}
	for _, status := range sequence {
		b.Publish(campaignAt(1, status))
	}

	assert.Equal(t, sequence, collect(t, first, len(sequence)))
	assert.Equal(t, sequence, collect(t, second, len(sequence)), "every subscriber sees the same ordered sequence")
}

func TestPublishIsScopedToCampaign(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	mine, cancelMine := b.Subscribe(1)
	other, cancelOther := b.Subscribe(2)
	defer cancelMine()
	defer cancelOther()

	b.Publish(campaignAt(1, store.CampaignStatusCompleted))

	assert.Equal(t, []string{store.CampaignStatusCompleted}, collect(t, mine, 1))
	select {
	case c := <-other:
		t.Fatalf("subscriber of campaign 2 received update for campaign %d", c.ID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCancelStopsDeliveryAndClosesChannel(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	ch, cancel := b.Subscribe(1)
	cancel()
	cancel() // safe to repeat

	_, open := <-ch
	assert.False(t, open)

	// Publishing after cancel must not panic or block.
	b.Publish(campaignAt(1, store.CampaignStatusCompleted))
}

func TestSlowSubscriberIsDetachedNotSkipped(t *testing.T) {
	b := New(zap.NewNop().Sugar())

	slow, cancelSlow := b.Subscribe(1)
	defer cancelSlow()
	healthy, cancelHealthy := b.Subscribe(1)
	defer cancelHealthy()

	// Overrun the slow subscriber's buffer without draining it.
	for i := 0; i < subscriberBuffer+1; i++ {
		b.Publish(campaignAt(1, store.CampaignStatusCampaignCreated))
		// Keep the healthy subscriber drained.
		<-healthy
	}

	// The slow channel was closed after the buffered items.
	drained := 0
	for range slow {
		drained++
	}
	assert.Equal(t, subscriberBuffer, drained, "a lagging subscriber keeps its buffered prefix, then the stream ends")

	// The healthy subscriber keeps receiving.
	b.Publish(campaignAt(1, store.CampaignStatusCompleted))
	assert.Equal(t, []string{store.CampaignStatusCompleted}, collect(t, healthy, 1))
}

type recordingSink struct {
	statuses []string
	err      error
}

func (s *recordingSink) Send(_ context.Context, c *store.Campaign) error {
	if s.err != nil {
		return s.err
	}
	s.statuses = append(s.statuses, c.Status)
	return nil
}

func TestSinkReceivesEveryTransition(t *testing.T) {
	sink := &recordingSink{}
	b := New(zap.NewNop().Sugar(), WithSink(sink))

	b.Publish(campaignAt(1, store.CampaignStatusCampaignCreated))
	b.Publish(campaignAt(1, store.CampaignStatusCompleted))

	require.Equal(t, []string{
		store.CampaignStatusCampaignCreated,
		store.CampaignStatusCompleted,
	}, sink.statuses)
}

func TestSinkErrorDoesNotBreakLocalDelivery(t *testing.T) {
	sink := &recordingSink{err: assert.AnError}
	b := New(zap.NewNop().Sugar(), WithSink(sink))

	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(campaignAt(1, store.CampaignStatusCompleted))
	assert.Equal(t, []string{store.CampaignStatusCompleted}, collect(t, ch, 1))
}
