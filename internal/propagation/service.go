// Package propagation is the encrypted aggregation and disclosure core.
//
// State is kept per location and mutated under that location's lock only, so
// submissions, computation and disclosure for different locations never wait
// on each other. Each operation runs to completion under the lock before the
// next one for the same location starts.
package propagation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
)

// Oracle issues asynchronous decryption requests. NewRequestID reserves a
// correlation key without I/O; RequestDecryption sends the request under that
// key. The callback arrives later through Service.HandleDecryption and must
// not be delivered from inside RequestDecryption on the calling goroutine.
type Oracle interface {
	NewRequestID() domain.RequestID
	RequestDecryption(ctx context.Context, id domain.RequestID, ciphertexts []domain.Ciphertext) error
}

// ProofVerifier checks that cleartexts were produced by the oracle for id.
type ProofVerifier interface {
	Verify(id domain.RequestID, cleartexts, proof []byte) error
}

// EventPublisher receives domain events after their transition commits.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) error
}

// Store persists location state. Writes happen under the location lock
// before the in-memory transition, so a failed write leaves the location
// unchanged.
type Store interface {
	AppendReading(ctx context.Context, reading domain.SensorReading) error
	SaveModel(ctx context.Context, id domain.LocationID, prediction domain.Ciphertext) error
	SaveRequest(ctx context.Context, id domain.LocationID, requestID domain.RequestID) error
	DeleteRequest(ctx context.Context, requestID domain.RequestID) error
	SaveAlert(ctx context.Context, id domain.LocationID, level domain.AlertLevel) error
	LoadLocations(ctx context.Context) ([]LocationRecord, error)
}

// LocationRecord is the persisted form of one location.
type LocationRecord struct {
	ID       domain.LocationID
	Readings []domain.SensorReading
	Model    PropagationModel
	Alert    AlertRecord
	Request  domain.RequestID
}

// PropagationModel is the per-location aggregate.
type PropagationModel struct {
	EncryptedPrediction domain.Ciphertext
	IsComputed          bool
}

// AlertRecord is the disclosed classification for a location.
type AlertRecord struct {
	AlertLevel domain.AlertLevel
	IsRevealed bool
}

// location is everything owned by one location's single-writer context.
type location struct {
	mu       sync.Mutex
	readings []domain.SensorReading
	model    PropagationModel
	alert    AlertRecord
	request  domain.RequestID
}

func (l *location) state() domain.LocationState {
	switch {
	case l.alert.IsRevealed:
		return domain.StateRevealed
	case !l.request.IsZero():
		return domain.StateDisclosureRequested
	case l.model.IsComputed:
		return domain.StateComputed
	case len(l.readings) > 0:
		return domain.StateAwaitingComputation
	default:
		return domain.StateNoData
	}
}

// decryptionRequest correlates an in-flight oracle call to its location.
type decryptionRequest struct {
	location domain.LocationID
	consumed bool
}

// Service implements the location ledger, the aggregator and the disclosure
// state machine.
type Service struct {
	scheme   domain.Scheme
	oracle   Oracle
	verifier ProofVerifier
	events   EventPublisher
	store    Store
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu        sync.Mutex
	locations map[domain.LocationID]*location
	lastID    atomic.Uint64

	// reqMu guards requests only and is never held across I/O.
	// Lock order: location.mu, then reqMu.
	reqMu    sync.Mutex
	requests map[domain.RequestID]*decryptionRequest
}

// Option configures a Service.
type Option func(*Service)

// WithStore persists state to store. Without it state lives in memory only.
func WithStore(store Store) Option {
	return func(s *Service) { s.store = store }
}

// New creates a Service. events may be nil.
func New(scheme domain.Scheme, oracle Oracle, verifier ProofVerifier, events EventPublisher, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Service {
	s := &Service{
		scheme:    scheme,
		oracle:    oracle,
		verifier:  verifier,
		events:    events,
		store:     memoryStore{},
		logger:    logger,
		metrics:   metrics,
		locations: make(map[domain.LocationID]*location),
		requests:  make(map[domain.RequestID]*decryptionRequest),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads persisted locations. Call it once, before serving traffic.
func (s *Service) Restore(ctx context.Context) error {
	records, err := s.store.LoadLocations(ctx)
	if err != nil {
		return fmt.Errorf("load locations: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	var lastID domain.ReadingID
	for _, rec := range records {
		s.locations[rec.ID] = &location{
			readings: rec.Readings,
			model:    rec.Model,
			alert:    rec.Alert,
			request:  rec.Request,
		}
		if !rec.Request.IsZero() {
			s.requests[rec.Request] = &decryptionRequest{location: rec.ID, consumed: rec.Alert.IsRevealed}
		}
		for _, r := range rec.Readings {
			lastID = max(lastID, r.ID)
		}
	}
	if uint64(lastID) > s.lastID.Load() {
		s.lastID.Store(uint64(lastID))
	}
	s.metrics.LocationsTracked.Set(float64(len(s.locations)))
	s.logger.Info("state restored", "locations", len(records), "last_reading_id", lastID)
	return nil
}

// lookup returns the location record, or nil if no reading was ever submitted.
func (s *Service) lookup(id domain.LocationID) *location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locations[id]
}

// lookupOrCreate returns the location record, creating it if needed.
func (s *Service) lookupOrCreate(id domain.LocationID) *location {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.locations[id]
	if !ok {
		loc = &location{}
		s.locations[id] = loc
	}
	return loc
}

// memoryStore keeps nothing; state lives only in the Service maps.
type memoryStore struct{}

func (memoryStore) AppendReading(context.Context, domain.SensorReading) error { return nil }
func (memoryStore) SaveModel(context.Context, domain.LocationID, domain.Ciphertext) error {
	return nil
}
func (memoryStore) SaveRequest(context.Context, domain.LocationID, domain.RequestID) error {
	return nil
}
func (memoryStore) DeleteRequest(context.Context, domain.RequestID) error { return nil }
func (memoryStore) SaveAlert(context.Context, domain.LocationID, domain.AlertLevel) error {
	return nil
}
func (memoryStore) LoadLocations(context.Context) ([]LocationRecord, error) { return nil, nil }

// emit hands an event to the publisher. Delivery failures are logged; the
// transition that produced the event stays committed.
func (s *Service) emit(ctx context.Context, event domain.Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("publish domain event failed",
			"error", err,
			"event_type", event.Type,
			"location_id", event.LocationID,
		)
	}
}
