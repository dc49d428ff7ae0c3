package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// writeBatchTimeout bounds how long a synchronous single-message write waits
// for a batch to fill. kafka-go's default is one second.
const writeBatchTimeout = 5 * time.Millisecond

// newWriter creates a producer for topic with the service's delivery settings.
func newWriter(cfg *config.Config, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: writeBatchTimeout,
	}
}

// serializeEvent marshals a domain event keyed by location, so one
// location's events stay on one partition in order.
func serializeEvent(event domain.Event) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize domain event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.LocationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}
