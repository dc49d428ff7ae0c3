package kafka

import (
	"context"

	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

type messageFetcher interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Reader consumes one topic as part of the service consumer group.
// It implements pipeline.Source.
type Reader struct {
	reader messageFetcher
}

// NewReader creates a consumer-group reader for topic.
func NewReader(cfg *config.Config, topic string) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupID:     cfg.KafkaGroupID,
		Topic:       topic,
		StartOffset: kafkago.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return &Reader{reader: r}
}

// Fetch blocks until the next message arrives. Offsets are committed only
// through the returned message's Commit hook.
func (r *Reader) Fetch(ctx context.Context) (pipeline.Message, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return pipeline.Message{}, err
	}
	return mapMessage(msg, func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}), nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func mapMessage(msg kafkago.Message, commit func(context.Context) error) pipeline.Message {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return pipeline.Message{
		Key:       msg.Key,
		Value:     msg.Value,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
		Headers:   headers,
		Commit:    commit,
	}
}
