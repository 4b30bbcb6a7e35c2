package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"adpilot/internal/store"

	"github.com/segmentio/kafka-go"
)

// KafkaSink forwards campaign transitions to a topic, keyed by campaign id so
// a partition preserves per-campaign ordering.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (s *KafkaSink) Send(ctx context.Context, campaign *store.Campaign) error {
	payload, err := json.Marshal(campaign)
	if err != nil {
		return fmt.Errorf("marshal campaign: %w", err)
	}

	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(campaign.ID, 10)),
		Value: payload,
	})
	if err != nil {
		return fmt.Errorf("write campaign transition: %w", err)
	}

	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
