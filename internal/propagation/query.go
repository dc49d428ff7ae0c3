package propagation

import (
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
)

// LocationStatus is a consistent snapshot of one location for read APIs.
type LocationStatus struct {
	LocationID   domain.LocationID    `json:"location_id"`
	State        domain.LocationState `json:"state"`
	ReadingCount int                  `json:"reading_count"`
	RequestID    domain.RequestID     `json:"request_id,omitempty"`
	AlertLevel   domain.AlertLevel    `json:"alert_level,omitempty"`
}

// EncryptedPrediction returns the fixed prediction ciphertext.
func (s *Service) EncryptedPrediction(id domain.LocationID) (domain.Ciphertext, error) {
	loc := s.lookup(id)
	if loc == nil {
		return nil, fmt.Errorf("%w: location %q", domain.ErrNotComputed, id)
	}
	loc.mu.Lock()
	defer loc.mu.Unlock()
	if !loc.model.IsComputed {
		return nil, fmt.Errorf("%w: location %q", domain.ErrNotComputed, id)
	}
	return loc.model.EncryptedPrediction.Clone(), nil
}

// AlertLevel returns the revealed alert level.
func (s *Service) AlertLevel(id domain.LocationID) (domain.AlertLevel, error) {
	loc := s.lookup(id)
	if loc == nil {
		return "", fmt.Errorf("%w: location %q", domain.ErrNotRevealed, id)
	}
	loc.mu.Lock()
	defer loc.mu.Unlock()
	if !loc.alert.IsRevealed {
		return "", fmt.Errorf("%w: location %q", domain.ErrNotRevealed, id)
	}
	return loc.alert.AlertLevel, nil
}

// ReadingCount returns the ledger length, 0 for unknown locations.
func (s *Service) ReadingCount(id domain.LocationID) int {
	loc := s.lookup(id)
	if loc == nil {
		return 0
	}
	loc.mu.Lock()
	defer loc.mu.Unlock()
	return len(loc.readings)
}

// State returns the lifecycle state of a location.
func (s *Service) State(id domain.LocationID) domain.LocationState {
	loc := s.lookup(id)
	if loc == nil {
		return domain.StateNoData
	}
	loc.mu.Lock()
	defer loc.mu.Unlock()
	return loc.state()
}

// Status returns a snapshot of a location taken under its lock.
func (s *Service) Status(id domain.LocationID) LocationStatus {
	status := LocationStatus{LocationID: id, State: domain.StateNoData}
	loc := s.lookup(id)
	if loc == nil {
		return status
	}
	loc.mu.Lock()
	defer loc.mu.Unlock()
	status.State = loc.state()
	status.ReadingCount = len(loc.readings)
	status.RequestID = loc.request
	status.AlertLevel = loc.alert.AlertLevel
	return status
}

// Readings returns a copy of the location's ledger in insertion order.
func (s *Service) Readings(id domain.LocationID) []domain.SensorReading {
	loc := s.lookup(id)
	if loc == nil {
		return nil
	}
	loc.mu.Lock()
	defer loc.mu.Unlock()
	out := make([]domain.SensorReading, len(loc.readings))
	for i, r := range loc.readings {
		out[i] = r.Clone()
	}
	return out
}
