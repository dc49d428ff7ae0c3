package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "smoke_propagation"

// Metrics holds the Prometheus collectors for the ledger, the oracle bridge
// and event delivery.
type Metrics struct {
	ReadingsSubmitted    prometheus.Counter
	ModelsComputed       prometheus.Counter
	DisclosuresRequested prometheus.Counter
	AlertsRevealed       *prometheus.CounterVec // labels: level
	CallbackRejections   *prometheus.CounterVec // labels: reason={invalid_request,authenticity,already_revealed,malformed}
	ComputeDuration      prometheus.Histogram
	LocationsTracked     prometheus.Gauge

	// Ingestion and delivery.
	MessagesConsumed *prometheus.CounterVec // labels: topic
	MessageErrors    *prometheus.CounterVec // labels: topic
	EventsPublished  *prometheus.CounterVec // labels: sink, outcome={success,error}
	EventQueueDepth  prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.ReadingsSubmitted,
		m.ModelsComputed,
		m.DisclosuresRequested,
		m.AlertsRevealed,
		m.CallbackRejections,
		m.ComputeDuration,
		m.LocationsTracked,
		m.MessagesConsumed,
		m.MessageErrors,
		m.EventsPublished,
		m.EventQueueDepth,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReadingsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_submitted_total",
			Help:      "Encrypted readings appended to location ledgers.",
		}),
		ModelsComputed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "models_computed_total",
			Help:      "Locations whose encrypted prediction has been computed.",
		}),
		DisclosuresRequested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "disclosures_requested_total",
			Help:      "Decryption requests issued to the oracle.",
		}),
		AlertsRevealed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_revealed_total",
			Help:      "Alert levels published, by level.",
		}, []string{"level"}),
		CallbackRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_rejections_total",
			Help:      "Oracle callbacks rejected, by reason.",
		}, []string{"reason"}),
		ComputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compute_duration_seconds",
			Help:      "Duration of homomorphic aggregation for one location.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		LocationsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "locations_tracked",
			Help:      "Locations with at least one reading.",
		}),
		MessagesConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Kafka messages read, by topic.",
		}, []string{"topic"}),
		MessageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_errors_total",
			Help:      "Kafka messages that could not be applied and were skipped, by topic.",
		}, []string{"topic"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Domain events delivered to sinks, by sink and outcome.",
		}, []string{"sink", "outcome"}),
		EventQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_queue_depth",
			Help:      "Domain events waiting for the Kafka publisher.",
		}),
	}
}
