package propagation

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
)

// RequestDisclosure sends the location's encrypted prediction to the oracle
// and records the correlation key. It returns as soon as the request is
// issued; the answer arrives through HandleDecryption.
//
// At most one request is ever issued per location: the state check and the
// oracle call happen under the location lock. The correlation key is recorded
// before the call and dropped again if the call fails.
func (s *Service) RequestDisclosure(ctx context.Context, id domain.LocationID) (domain.RequestID, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	loc := s.lookup(id)
	if loc == nil {
		return "", fmt.Errorf("%w: location %q has no computed prediction", domain.ErrInvalidState, id)
	}

	loc.mu.Lock()
	defer loc.mu.Unlock()

	switch loc.state() {
	case domain.StateComputed:
	case domain.StateDisclosureRequested, domain.StateRevealed:
		return "", fmt.Errorf("%w: disclosure already requested for location %q", domain.ErrInvalidState, id)
	default:
		return "", fmt.Errorf("%w: location %q has no computed prediction", domain.ErrInvalidState, id)
	}

	requestID, err := s.reserve(id)
	if err != nil {
		return "", err
	}
	if err := s.store.SaveRequest(ctx, id, requestID); err != nil {
		s.release(requestID)
		return "", fmt.Errorf("persist request for location %q: %w", id, err)
	}

	ciphertexts := []domain.Ciphertext{loc.model.EncryptedPrediction.Clone()}
	if err := s.oracle.RequestDecryption(ctx, requestID, ciphertexts); err != nil {
		s.release(requestID)
		if derr := s.store.DeleteRequest(context.WithoutCancel(ctx), requestID); derr != nil {
			s.logger.Error("drop abandoned request failed",
				"location_id", id,
				"request_id", requestID,
				"error", derr,
			)
		}
		return "", fmt.Errorf("request decryption for location %q: %w", id, err)
	}
	loc.request = requestID
	s.metrics.DisclosuresRequested.Inc()

	s.logger.Info("disclosure requested", "location_id", id, "request_id", requestID)

	event := domain.NewEvent(domain.EventDisclosureRequested, id)
	event.RequestID = requestID
	s.emit(ctx, event)

	return requestID, nil
}

// reserve takes a fresh correlation key from the oracle and records it as
// pending for id.
func (s *Service) reserve(id domain.LocationID) (domain.RequestID, error) {
	requestID := s.oracle.NewRequestID()
	if requestID.IsZero() {
		return "", fmt.Errorf("request decryption for location %q: oracle returned an empty request id", id)
	}

	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	if _, exists := s.requests[requestID]; exists {
		return "", fmt.Errorf("request decryption for location %q: oracle reused request id %q", id, requestID)
	}
	s.requests[requestID] = &decryptionRequest{location: id}
	return requestID, nil
}

func (s *Service) release(requestID domain.RequestID) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	delete(s.requests, requestID)
}

// HandleDecryption applies an oracle callback. In order it: resolves the
// request id, verifies the proof, rejects duplicates for revealed locations,
// decodes and classifies the scalar, and publishes the alert level. The
// transition to Revealed is terminal.
func (s *Service) HandleDecryption(ctx context.Context, requestID domain.RequestID, cleartexts, proof []byte) (domain.AlertLevel, error) {
	level, err := s.handleDecryption(ctx, requestID, cleartexts, proof)
	if err != nil {
		s.metrics.CallbackRejections.WithLabelValues(rejectionReason(err)).Inc()
	}
	return level, err
}

func (s *Service) handleDecryption(ctx context.Context, requestID domain.RequestID, cleartexts, proof []byte) (domain.AlertLevel, error) {
	locationID, err := s.resolve(requestID)
	if err != nil {
		return "", err
	}

	if err := s.verifier.Verify(requestID, cleartexts, proof); err != nil {
		s.logger.Error("decryption proof rejected",
			"security_event", true,
			"request_id", requestID,
			"location_id", locationID,
			"error", err,
		)
		return "", fmt.Errorf("%w: request %q: %v", domain.ErrAuthenticity, requestID, err)
	}

	loc := s.lookup(locationID)
	if loc == nil {
		return "", fmt.Errorf("%w: request %q references unknown location", domain.ErrInvalidRequest, requestID)
	}
	loc.mu.Lock()
	defer loc.mu.Unlock()

	// The request may have been reserved but never sent.
	if loc.request != requestID {
		return "", fmt.Errorf("%w: request %q is not open for location %q", domain.ErrInvalidRequest, requestID, locationID)
	}
	if loc.alert.IsRevealed {
		return "", fmt.Errorf("%w: location %q", domain.ErrAlreadyRevealed, locationID)
	}

	value, err := domain.DecodeScalar(cleartexts)
	if err != nil {
		return "", fmt.Errorf("request %q: %w", requestID, err)
	}
	level := domain.ClassifyPrediction(value)
	if err := s.store.SaveAlert(ctx, locationID, level); err != nil {
		return "", fmt.Errorf("persist alert for location %q: %w", locationID, err)
	}

	loc.alert = AlertRecord{AlertLevel: level, IsRevealed: true}
	s.consume(requestID)
	s.metrics.AlertsRevealed.WithLabelValues(string(level)).Inc()

	s.logger.Info("alert revealed", "location_id", locationID, "request_id", requestID, "alert_level", level)

	event := domain.NewEvent(domain.EventAlertRevealed, locationID)
	event.RequestID = requestID
	event.AlertLevel = level
	s.emit(ctx, event)

	return level, nil
}

// resolve maps a live request id to its location.
func (s *Service) resolve(requestID domain.RequestID) (domain.LocationID, error) {
	if requestID.IsZero() {
		return "", fmt.Errorf("%w: empty request id", domain.ErrInvalidRequest)
	}
	s.reqMu.Lock()
	defer s.reqMu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return "", fmt.Errorf("%w: unknown request id %q", domain.ErrInvalidRequest, requestID)
	}
	if req.consumed {
		return "", fmt.Errorf("%w: request id %q already consumed", domain.ErrInvalidRequest, requestID)
	}
	return req.location, nil
}

func (s *Service) consume(requestID domain.RequestID) {
	s.reqMu.Lock()
	defer s.reqMu.Unlock()
	if req, ok := s.requests[requestID]; ok {
		req.consumed = true
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, domain.ErrAuthenticity):
		return "authenticity"
	case errors.Is(err, domain.ErrAlreadyRevealed):
		return "already_revealed"
	case errors.Is(err, domain.ErrMalformedInput):
		return "malformed"
	default:
		return "internal"
	}
}
