package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
)

// Answerer decrypts a request and proves the result.
type Answerer interface {
	Respond(req oracle.Request) (oracle.Response, error)
}

// Responder is the oracle side of the bridge: it answers requests consumed
// from the request topic by producing to the response topic.
type Responder struct {
	answerer Answerer
	writer   messageWriter
	logger   *slog.Logger
}

// NewResponder creates a Responder producing to the decryption response topic.
func NewResponder(cfg *config.Config, answerer Answerer, logger *slog.Logger) *Responder {
	return &Responder{
		answerer: answerer,
		writer:   newWriter(cfg, cfg.KafkaDecryptResponseTopic),
		logger:   logger,
	}
}

// Handle implements pipeline.Handler. Undecryptable requests are skipped;
// broker failures are retried so no answer is lost.
func (r *Responder) Handle(ctx context.Context, msg pipeline.Message) error {
	var req oracle.Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		return fmt.Errorf("%w: decode decryption request: %v", domain.ErrMalformedInput, err)
	}
	resp, err := r.answerer.Respond(req)
	if err != nil {
		return err
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("serialize decryption response: %w", err)
	}
	out := kafkago.Message{Key: []byte(resp.RequestID), Value: data}
	if err := r.writer.WriteMessages(ctx, out); err != nil {
		return pipeline.Retryable(fmt.Errorf("write decryption response: %w", err))
	}
	r.logger.Info("decryption request answered", "request_id", resp.RequestID)
	return nil
}

func (r *Responder) Close() error {
	return r.writer.Close()
}
