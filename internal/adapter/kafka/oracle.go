package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// OracleBridge issues decryption requests by producing them to the oracle's
// request topic. It implements propagation.Oracle; answers come back on the
// response topic and are applied by ResponseHandler.
type OracleBridge struct {
	writer messageWriter
	logger *slog.Logger
}

// NewOracleBridge creates a bridge producing to the decryption request topic.
func NewOracleBridge(cfg *config.Config, logger *slog.Logger) *OracleBridge {
	return &OracleBridge{writer: newWriter(cfg, cfg.KafkaDecryptRequestTopic), logger: logger}
}

// NewRequestID returns a fresh uuid correlation key.
func (b *OracleBridge) NewRequestID() domain.RequestID {
	return domain.RequestID(uuid.NewString())
}

// RequestDecryption writes the request synchronously, so a nil error means
// the request is durable on the broker.
func (b *OracleBridge) RequestDecryption(ctx context.Context, id domain.RequestID, ciphertexts []domain.Ciphertext) error {
	data, err := json.Marshal(oracle.Request{RequestID: id, Ciphertexts: ciphertexts})
	if err != nil {
		return fmt.Errorf("serialize decryption request: %w", err)
	}
	msg := kafkago.Message{Key: []byte(id), Value: data}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write decryption request: %w", err)
	}
	b.logger.Debug("decryption request written", "request_id", id, "ciphertexts", len(ciphertexts))
	return nil
}

func (b *OracleBridge) Close() error {
	return b.writer.Close()
}
