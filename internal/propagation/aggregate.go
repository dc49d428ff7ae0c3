package propagation

import (
	"context"
	"fmt"
	"time"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
)

// Compute aggregates a location's ledger into its encrypted prediction,
// exactly once. Anyone may trigger it; only the plaintext is protected.
//
// The ledger length is fixed for the duration of the call because the
// location lock also serializes Submit. On any arithmetic or store failure
// the model is left untouched.
func (s *Service) Compute(ctx context.Context, id domain.LocationID) error {
	if err := id.Validate(); err != nil {
		return err
	}
	loc := s.lookup(id)
	if loc == nil {
		return fmt.Errorf("%w: no readings for location %q", domain.ErrInvalidState, id)
	}

	loc.mu.Lock()
	defer loc.mu.Unlock()

	if len(loc.readings) == 0 {
		return fmt.Errorf("%w: no readings for location %q", domain.ErrInvalidState, id)
	}
	if loc.model.IsComputed {
		return fmt.Errorf("%w: location %q already computed", domain.ErrInvalidState, id)
	}

	start := time.Now()
	prediction, err := s.aggregate(loc.readings)
	if err != nil {
		return fmt.Errorf("compute location %q: %w", id, err)
	}
	if err := s.store.SaveModel(ctx, id, prediction); err != nil {
		return fmt.Errorf("persist model for location %q: %w", id, err)
	}

	loc.model = PropagationModel{EncryptedPrediction: prediction, IsComputed: true}
	s.metrics.ModelsComputed.Inc()
	s.metrics.ComputeDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("propagation model computed",
		"location_id", id,
		"readings", len(loc.readings),
	)
	s.emit(ctx, domain.NewEvent(domain.EventModelComputed, id))
	return nil
}

// aggregate evaluates avg(smoke) × avg(windSpeed) over readings.
func (s *Service) aggregate(readings []domain.SensorReading) (domain.Ciphertext, error) {
	smoke, wind, direction := s.scheme.Zero(), s.scheme.Zero(), s.scheme.Zero()
	var err error
	for _, r := range readings {
		if smoke, err = s.scheme.Add(smoke, r.EncryptedSmokeLevel); err != nil {
			return nil, fmt.Errorf("sum smoke level: %w", err)
		}
		if wind, err = s.scheme.Add(wind, r.EncryptedWindSpeed); err != nil {
			return nil, fmt.Errorf("sum wind speed: %w", err)
		}
		if direction, err = s.scheme.Add(direction, r.EncryptedWindDirection); err != nil {
			return nil, fmt.Errorf("sum wind direction: %w", err)
		}
	}

	n := uint64(len(readings))
	avgSmoke, err := s.scheme.DivScalar(smoke, n)
	if err != nil {
		return nil, fmt.Errorf("average smoke level: %w", err)
	}
	avgWind, err := s.scheme.DivScalar(wind, n)
	if err != nil {
		return nil, fmt.Errorf("average wind speed: %w", err)
	}
	// The direction average is part of the aggregation round but not of the
	// score.
	if _, err := s.scheme.DivScalar(direction, n); err != nil {
		return nil, fmt.Errorf("average wind direction: %w", err)
	}

	prediction, err := s.scheme.Mul(avgSmoke, avgWind)
	if err != nil {
		return nil, fmt.Errorf("multiply averages: %w", err)
	}
	return prediction, nil
}
