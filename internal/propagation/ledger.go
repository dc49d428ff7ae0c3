package propagation

import (
	"context"
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
)

// Submit appends an encrypted reading to its location's ledger and returns the
// assigned reading id. The first reading for a location also creates its
// uncomputed model (prediction = encrypted zero) and its unset alert record.
//
// Readings for already computed locations are accepted; they are simply not
// part of the aggregate that was already fixed.
func (s *Service) Submit(ctx context.Context, reading domain.SensorReading) (domain.ReadingID, error) {
	if err := reading.Validate(); err != nil {
		return 0, err
	}
	for name, ct := range map[string]domain.Ciphertext{
		"smoke level":    reading.EncryptedSmokeLevel,
		"wind speed":     reading.EncryptedWindSpeed,
		"wind direction": reading.EncryptedWindDirection,
	} {
		if err := s.scheme.Validate(ct); err != nil {
			return 0, fmt.Errorf("%w: encrypted %s: %v", domain.ErrMalformedInput, name, err)
		}
	}

	loc := s.lookupOrCreate(reading.LocationID)
	loc.mu.Lock()
	defer loc.mu.Unlock()

	stored := reading.Clone()
	stored.ID = domain.ReadingID(s.lastID.Add(1))
	stored.Timestamp = domain.Now()
	if err := s.store.AppendReading(ctx, stored); err != nil {
		return 0, fmt.Errorf("persist reading for location %q: %w", stored.LocationID, err)
	}

	first := len(loc.readings) == 0
	if first {
		loc.model = PropagationModel{EncryptedPrediction: s.scheme.Zero()}
		loc.alert = AlertRecord{}
		s.metrics.LocationsTracked.Inc()
	}
	loc.readings = append(loc.readings, stored)
	s.metrics.ReadingsSubmitted.Inc()

	s.logger.Debug("reading submitted",
		"location_id", stored.LocationID,
		"reading_id", stored.ID,
		"contributor", stored.Contributor,
		"ledger_length", len(loc.readings),
	)

	event := domain.NewEvent(domain.EventReadingSubmitted, stored.LocationID)
	event.ReadingID = stored.ID
	s.emit(ctx, event)

	return stored.ID, nil
}
