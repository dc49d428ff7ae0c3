package kafka

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
)

var (
	errPublisherNotStarted = errors.New("event publisher not started")
	errPublisherStopped    = errors.New("event publisher stopped")
	errPublisherQueueFull  = errors.New("event publisher queue full")
)

// EventPublisher delivers domain events to the events topic from a bounded
// queue drained by one background goroutine. Publish never waits on the
// broker, so it is safe to call while holding a location lock.
type EventPublisher struct {
	writer  messageWriter
	logger  *slog.Logger
	metrics *observability.Metrics

	queue     chan kafkago.Message
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	startOnce sync.Once
	stopOnce  sync.Once

	// mu orders enqueues before the drain: Publish holds it shared across
	// the state check and the send, Stop takes it exclusively to close.
	mu      sync.RWMutex
	started bool
	stopped bool
}

// NewEventPublisher creates a publisher for the configured events topic.
func NewEventPublisher(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *EventPublisher {
	return newEventPublisher(newWriter(cfg, cfg.KafkaEventsTopic), cfg.EventQueueSize, logger, metrics)
}

func newEventPublisher(w messageWriter, queueSize int, logger *slog.Logger, metrics *observability.Metrics) *EventPublisher {
	return &EventPublisher{
		writer:  w,
		logger:  logger.With("component", "event_publisher"),
		metrics: metrics,
		queue:   make(chan kafkago.Message, queueSize),
	}
}

// Start launches the delivery loop.
func (p *EventPublisher) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		p.mu.Lock()
		p.runCtx, p.cancel = context.WithCancel(ctx)
		p.started = true
		p.mu.Unlock()
		p.wg.Add(1)
		go p.run()
		p.logger.Info("event publisher started")
	})
}

// Stop ends the loop after draining queued events, then closes the writer.
// ctx bounds the drain.
func (p *EventPublisher) Stop(ctx context.Context) error {
	var stopErr error
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			stopErr = ctx.Err()
		}
		if err := p.writer.Close(); err != nil {
			p.logger.Error("close event writer failed", "error", err)
		}
		p.metrics.EventQueueDepth.Set(0)
		p.logger.Info("event publisher stopped")
	})
	return stopErr
}

// Publish enqueues event. It fails fast when the queue is full or the
// publisher is not running.
func (p *EventPublisher) Publish(_ context.Context, event domain.Event) error {
	msg, err := serializeEvent(event)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	switch {
	case p.stopped:
		return errPublisherStopped
	case !p.started:
		return errPublisherNotStarted
	}
	select {
	case p.queue <- msg:
		p.metrics.EventQueueDepth.Set(float64(len(p.queue)))
		return nil
	default:
		return errPublisherQueueFull
	}
}

func (p *EventPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.runCtx.Done():
			p.drain()
			return
		case msg := <-p.queue:
			p.metrics.EventQueueDepth.Set(float64(len(p.queue)))
			p.deliver(p.runCtx, msg)
		}
	}
}

// drain delivers what is left in the queue. The run context is already
// cancelled, so writes use a context detached from it.
func (p *EventPublisher) drain() {
	ctx := context.WithoutCancel(p.runCtx)
	for {
		select {
		case msg := <-p.queue:
			p.metrics.EventQueueDepth.Set(float64(len(p.queue)))
			p.deliver(ctx, msg)
		default:
			return
		}
	}
}

func (p *EventPublisher) deliver(ctx context.Context, msg kafkago.Message) {
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("deliver event failed", "error", err, "key", string(msg.Key))
	}
}
