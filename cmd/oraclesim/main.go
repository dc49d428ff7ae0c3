// Command oraclesim is a development decryption oracle. It answers requests
// for simulated ciphertexts so the full disclosure flow runs locally.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	kafkaadapter "github.com/couchcryptid/smoke-propagation-service/internal/adapter/kafka"
	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/pipeline"
)

func main() {
	cfg, err := config.LoadOracle()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	signer, err := oracle.NewSigner(cfg.OraclePrivateKey)
	if err != nil {
		logger.Error("invalid oracle key", "error", err)
		os.Exit(1)
	}
	logger.Info("oracle simulator starting", "public_key", signer.PublicKeyHex())

	reader := kafkaadapter.NewReader(cfg, cfg.KafkaDecryptRequestTopic)
	responder := kafkaadapter.NewResponder(cfg, oracle.NewSimulator(signer), logger)
	p := pipeline.New(cfg.KafkaDecryptRequestTopic, reader, responder, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := p.Run(ctx); err != nil {
		logger.Error("pipeline error", "error", err)
	}

	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := responder.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}
	logger.Info("shutdown complete")
}
