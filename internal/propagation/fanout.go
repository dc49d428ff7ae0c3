package propagation

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
)

// Sink is a named event destination.
type Sink struct {
	Name      string
	Publisher EventPublisher
}

// FanOut delivers each event to every sink, even when an earlier sink fails.
type FanOut struct {
	sinks   []Sink
	metrics *observability.Metrics
}

// NewFanOut creates a FanOut over sinks.
func NewFanOut(metrics *observability.Metrics, sinks ...Sink) *FanOut {
	return &FanOut{sinks: sinks, metrics: metrics}
}

// Publish implements EventPublisher.
func (f *FanOut) Publish(ctx context.Context, event domain.Event) error {
	var errs []error
	for _, sink := range f.sinks {
		if err := sink.Publisher.Publish(ctx, event); err != nil {
			f.metrics.EventsPublished.WithLabelValues(sink.Name, "error").Inc()
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, err))
			continue
		}
		f.metrics.EventsPublished.WithLabelValues(sink.Name, "success").Inc()
	}
	return errors.Join(errs...)
}
