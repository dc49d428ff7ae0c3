package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/smoke-propagation-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/smoke-propagation-service/internal/adapter/kafka"
	"github.com/couchcryptid/smoke-propagation-service/internal/adapter/sqlite"
	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/pipeline"
	"github.com/couchcryptid/smoke-propagation-service/internal/propagation"
	"github.com/couchcryptid/smoke-propagation-service/internal/simulated"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var errOracleUnavailable = errors.New("oracle bridge disabled: KAFKA_ENABLED=false")

type unavailableOracle struct{}

func (unavailableOracle) NewRequestID() domain.RequestID {
	return domain.RequestID(uuid.NewString())
}

func (unavailableOracle) RequestDecryption(context.Context, domain.RequestID, []domain.Ciphertext) error {
	return errOracleUnavailable
}

// newScheme returns the configured encrypted value backend.
func newScheme(cfg *config.Config, logger *slog.Logger) (domain.Scheme, error) {
	switch cfg.EncryptionBackend {
	case config.BackendSimulated:
		logger.Warn("simulated encryption backend: readings and predictions are NOT confidential",
			"encryption_backend", cfg.EncryptionBackend)
		return simulated.New(), nil
	default:
		return nil, fmt.Errorf("unsupported encryption backend %q", cfg.EncryptionBackend)
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	if err := run(cfg, logger, metrics); err != nil {
		logger.Error("service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) error {
	verifier, err := oracle.NewVerifier(cfg.OraclePublicKey)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheme, err := newScheme(cfg, logger)
	if err != nil {
		return err
	}

	var (
		sinks     []propagation.Sink
		readiness observability.Readiness
		eventLog  httpadapter.EventLog
		opts      []propagation.Option
	)

	if cfg.DBPath != "" {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		sinks = append(sinks, propagation.Sink{Name: "audit", Publisher: store})
		readiness = append(readiness, observability.Check{Name: "state_store", Probe: store.Ping})
		eventLog = store
		opts = append(opts, propagation.WithStore(store))
		logger.Info("state store enabled", "path", store.Path())
	} else {
		logger.Warn("state store disabled: ledger state is lost on restart")
	}

	var (
		bridge    propagation.Oracle = unavailableOracle{}
		publisher *kafkaadapter.EventPublisher
	)
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewEventPublisher(cfg, logger, metrics)
		publisher.Start(ctx)
		sinks = append(sinks, propagation.Sink{Name: "kafka", Publisher: publisher})

		ob := kafkaadapter.NewOracleBridge(cfg, logger)
		defer ob.Close()
		bridge = ob
	} else {
		logger.Warn("kafka disabled: readings ingestion and disclosure requests are unavailable")
	}

	events := propagation.NewFanOut(metrics, sinks...)
	svc := propagation.New(scheme, bridge, verifier, events, logger, metrics, opts...)
	if err := svc.Restore(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.KafkaEnabled {
		readingsReader := kafkaadapter.NewReader(cfg, cfg.KafkaReadingsTopic)
		defer readingsReader.Close()
		responsesReader := kafkaadapter.NewReader(cfg, cfg.KafkaDecryptResponseTopic)
		defer responsesReader.Close()

		readings := pipeline.New(cfg.KafkaReadingsTopic, readingsReader,
			kafkaadapter.NewReadingsHandler(svc, logger), logger, metrics)
		responses := pipeline.New(cfg.KafkaDecryptResponseTopic, responsesReader,
			kafkaadapter.NewResponseHandler(svc, logger), logger, metrics)
		readiness = append(readiness,
			observability.Check{Name: "readings_consumer", Probe: readings.CheckReadiness},
			observability.Check{Name: "oracle_response_consumer", Probe: responses.CheckReadiness},
		)

		g.Go(func() error { return readings.Run(gctx) })
		g.Go(func() error { return responses.Run(gctx) })
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, svc, eventLog, readiness, logger)

	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
		if publisher != nil {
			if err := publisher.Stop(shutdownCtx); err != nil {
				logger.Error("event publisher stop error", "error", err)
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}
