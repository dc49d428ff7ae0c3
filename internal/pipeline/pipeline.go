// Package pipeline runs the fetch-handle-commit loop shared by every Kafka
// consumer in the service.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

// Message is one inbound record and the hook that acknowledges it.
type Message struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
	Commit    func(ctx context.Context) error
}

// Source delivers messages one at a time, blocking until one is available.
type Source interface {
	Fetch(ctx context.Context) (Message, error)
}

// Handler applies one message. Errors are permanent unless wrapped with
// Retryable; permanent failures are logged and the message is committed.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error { return f(ctx, msg) }

type retryableError struct{ err error }

func (e retryableError) Error() string { return e.err.Error() }
func (e retryableError) Unwrap() error { return e.err }

// Retryable marks err as transient: the message is redelivered to the
// handler after a backoff instead of being skipped.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return retryableError{err: err}
}

// IsRetryable reports whether err was marked with Retryable.
func IsRetryable(err error) bool {
	var r retryableError
	return errors.As(err, &r)
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// Pipeline consumes one topic.
type Pipeline struct {
	name    string
	source  Source
	handler Handler
	logger  *slog.Logger
	metrics *observability.Metrics
	running atomic.Bool
}

// New creates a Pipeline. name labels logs and metrics, usually the topic.
func New(name string, source Source, handler Handler, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		name:    name,
		source:  source,
		handler: handler,
		logger:  logger.With("pipeline", name),
		metrics: metrics,
	}
}

// CheckReadiness returns nil while the consume loop is running.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.running.Load() {
		return errors.New("consumer " + p.name + " is not running")
	}
	return nil
}

// Run consumes until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started")
	p.running.Store(true)
	defer p.running.Store(false)

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processOne(ctx, &backoff) {
			return nil
		}
	}
}

// processOne fetches and handles a single message. Returns false if the
// pipeline should stop.
func (p *Pipeline) processOne(ctx context.Context, backoff *time.Duration) bool {
	msg, err := p.source.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("fetch message failed", "error", err)
		return backoffOrStop(ctx, backoff)
	}
	*backoff = initialBackoff
	p.metrics.MessagesConsumed.WithLabelValues(p.name).Inc()

	for {
		err := p.handler.Handle(ctx, msg)
		if err == nil {
			break
		}
		if IsRetryable(err) {
			p.logger.Error("handle message failed, retrying",
				"error", err,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
			if !backoffOrStop(ctx, backoff) {
				return false
			}
			continue
		}
		p.logger.Warn("handle message failed, skipping",
			"error", err,
			"partition", msg.Partition,
			"offset", msg.Offset,
		)
		p.metrics.MessageErrors.WithLabelValues(p.name).Inc()
		break
	}
	*backoff = initialBackoff

	p.commit(ctx, msg)
	return true
}

func (p *Pipeline) commit(ctx context.Context, msg Message) {
	if msg.Commit == nil {
		return
	}
	if err := msg.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"partition", msg.Partition, "offset", msg.Offset)
	}
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the context ended first.
func backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !retry.SleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = retry.NextBackoff(*backoff, maxBackoff)
	return true
}
