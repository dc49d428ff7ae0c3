//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	kafkaadapter "github.com/couchcryptid/smoke-propagation-service/internal/adapter/kafka"
	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/pipeline"
	"github.com/couchcryptid/smoke-propagation-service/internal/propagation"
	"github.com/couchcryptid/smoke-propagation-service/internal/simulated"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDisclosureFlow runs readings ingestion, the oracle bridge, the
// development oracle and event publishing against a real broker.
func TestDisclosureFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	suffix := time.Now().UnixNano()
	cfg := &config.Config{
		KafkaEnabled:              true,
		KafkaBrokers:              []string{broker},
		KafkaGroupID:              fmt.Sprintf("test-service-%d", suffix),
		KafkaReadingsTopic:        "test-readings",
		KafkaDecryptRequestTopic:  "test-decrypt-requests",
		KafkaDecryptResponseTopic: "test-decrypt-responses",
		KafkaEventsTopic:          "test-events",
		EventQueueSize:            64,
	}
	for _, topic := range []string{cfg.KafkaReadingsTopic, cfg.KafkaDecryptRequestTopic, cfg.KafkaDecryptResponseTopic, cfg.KafkaEventsTopic} {
		createTopic(t, broker, topic)
	}

	logger := discardLogger()
	metrics := observability.NewMetricsForTesting()
	signer := oracle.GenerateSigner()
	verifier, err := oracle.NewVerifier(signer.PublicKeyHex())
	require.NoError(t, err)

	runCtx, stopRun := context.WithCancel(ctx)
	var wg sync.WaitGroup
	run := func(p *pipeline.Pipeline) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(runCtx)
		}()
	}

	publisher := kafkaadapter.NewEventPublisher(cfg, logger, metrics)
	publisher.Start(runCtx)
	bridge := kafkaadapter.NewOracleBridge(cfg, logger)
	t.Cleanup(func() { _ = bridge.Close() })

	svc := propagation.New(simulated.New(), bridge, verifier,
		propagation.NewFanOut(metrics, propagation.Sink{Name: "kafka", Publisher: publisher}), logger, metrics)

	readingsReader := kafkaadapter.NewReader(cfg, cfg.KafkaReadingsTopic)
	responsesReader := kafkaadapter.NewReader(cfg, cfg.KafkaDecryptResponseTopic)
	run(pipeline.New(cfg.KafkaReadingsTopic, readingsReader, kafkaadapter.NewReadingsHandler(svc, logger), logger, metrics))
	run(pipeline.New(cfg.KafkaDecryptResponseTopic, responsesReader, kafkaadapter.NewResponseHandler(svc, logger), logger, metrics))

	oracleCfg := *cfg
	oracleCfg.KafkaGroupID = fmt.Sprintf("test-oracle-%d", suffix)
	requestsReader := kafkaadapter.NewReader(&oracleCfg, cfg.KafkaDecryptRequestTopic)
	responder := kafkaadapter.NewResponder(&oracleCfg, oracle.NewSimulator(signer), logger)
	run(pipeline.New(cfg.KafkaDecryptRequestTopic, requestsReader, responder, logger, metrics))

	t.Cleanup(func() {
		stopRun()
		wg.Wait()
		_ = readingsReader.Close()
		_ = responsesReader.Close()
		_ = requestsReader.Close()
		_ = responder.Close()
		_ = publisher.Stop(context.Background())
	})

	// Agencies publish readings keyed by location.
	producer := &kafkago.Writer{Addr: kafkago.TCP(broker), Topic: cfg.KafkaReadingsTopic}
	t.Cleanup(func() { _ = producer.Close() })
	for _, smoke := range []uint64{2, 4, 6} {
		payload, err := json.Marshal(domain.SensorReading{
			Contributor:            "agency-1",
			EncryptedSmokeLevel:    simulated.Encrypt(smoke),
			EncryptedWindSpeed:     simulated.Encrypt(10),
			EncryptedWindDirection: simulated.Encrypt(90),
		})
		require.NoError(t, err)
		require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("zone-1"), Value: payload}))
	}
	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{Key: []byte("zone-1"), Value: []byte("poison")}))

	require.Eventually(t, func() bool { return svc.ReadingCount("zone-1") == 3 },
		90*time.Second, 250*time.Millisecond, "readings were not ingested")

	require.NoError(t, svc.Compute(ctx, "zone-1"))
	requestID, err := svc.RequestDisclosure(ctx, "zone-1")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return svc.State("zone-1") == domain.StateRevealed },
		90*time.Second, 250*time.Millisecond, "alert was not revealed")
	level, err := svc.AlertLevel("zone-1")
	require.NoError(t, err)
	assert.Equal(t, domain.AlertGood, level)

	// The events topic carries the whole lifecycle in order.
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       cfg.KafkaEventsTopic,
		GroupID:     fmt.Sprintf("test-events-%d", suffix),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	var types []domain.EventType
	for len(types) < 6 {
		readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
		msg, err := consumer.ReadMessage(readCtx)
		readCancel()
		require.NoError(t, err, "read from events topic")

		var event domain.Event
		require.NoError(t, json.Unmarshal(msg.Value, &event))
		assert.Equal(t, "zone-1", string(msg.Key))
		types = append(types, event.Type)
		if event.Type == domain.EventAlertRevealed {
			assert.Equal(t, requestID, event.RequestID)
			assert.Equal(t, domain.AlertGood, event.AlertLevel)
		}
	}
	assert.Equal(t, []domain.EventType{
		domain.EventReadingSubmitted,
		domain.EventReadingSubmitted,
		domain.EventReadingSubmitted,
		domain.EventModelComputed,
		domain.EventDisclosureRequested,
		domain.EventAlertRevealed,
	}, types)
}
