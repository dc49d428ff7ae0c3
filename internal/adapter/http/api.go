package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/propagation"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
)

const maxBodyBytes = 1 << 20

// Service is the propagation core as seen by the API.
type Service interface {
	Submit(ctx context.Context, reading domain.SensorReading) (domain.ReadingID, error)
	Compute(ctx context.Context, id domain.LocationID) error
	RequestDisclosure(ctx context.Context, id domain.LocationID) (domain.RequestID, error)
	HandleDecryption(ctx context.Context, requestID domain.RequestID, cleartexts, proof []byte) (domain.AlertLevel, error)
	EncryptedPrediction(id domain.LocationID) (domain.Ciphertext, error)
	AlertLevel(id domain.LocationID) (domain.AlertLevel, error)
	ReadingCount(id domain.LocationID) int
	Status(id domain.LocationID) propagation.LocationStatus
}

// EventLog lists recorded domain events for a location.
type EventLog interface {
	Events(ctx context.Context, location domain.LocationID) ([]domain.Event, error)
}

type api struct {
	svc    Service
	events EventLog
	logger *slog.Logger
}

func (a *api) submitReading(w http.ResponseWriter, r *http.Request) {
	var reading domain.SensorReading
	if !a.decode(w, r, &reading) {
		return
	}
	reading.LocationID = domain.LocationID(r.PathValue("id"))

	id, err := a.svc.Submit(r.Context(), reading)
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusCreated, map[string]any{
		"location_id": reading.LocationID,
		"reading_id":  id,
	})
}

func (a *api) compute(w http.ResponseWriter, r *http.Request) {
	id := domain.LocationID(r.PathValue("id"))
	if err := a.svc.Compute(r.Context(), id); err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, a.svc.Status(id))
}

func (a *api) requestDisclosure(w http.ResponseWriter, r *http.Request) {
	id := domain.LocationID(r.PathValue("id"))
	requestID, err := a.svc.RequestDisclosure(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusAccepted, map[string]any{
		"location_id": id,
		"request_id":  requestID,
	})
}

func (a *api) status(w http.ResponseWriter, r *http.Request) {
	sharedobs.WriteJSON(w, http.StatusOK, a.svc.Status(domain.LocationID(r.PathValue("id"))))
}

func (a *api) prediction(w http.ResponseWriter, r *http.Request) {
	id := domain.LocationID(r.PathValue("id"))
	ct, err := a.svc.EncryptedPrediction(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"location_id":          id,
		"encrypted_prediction": []byte(ct),
	})
}

func (a *api) alert(w http.ResponseWriter, r *http.Request) {
	id := domain.LocationID(r.PathValue("id"))
	level, err := a.svc.AlertLevel(id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"location_id": id,
		"alert_level": level,
	})
}

func (a *api) readingCount(w http.ResponseWriter, r *http.Request) {
	id := domain.LocationID(r.PathValue("id"))
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"location_id":   id,
		"reading_count": a.svc.ReadingCount(id),
	})
}

func (a *api) locationEvents(w http.ResponseWriter, r *http.Request) {
	if a.events == nil {
		sharedobs.WriteJSON(w, http.StatusNotFound, map[string]string{"error": "audit store disabled"})
		return
	}
	id := domain.LocationID(r.PathValue("id"))
	events, err := a.events.Events(r.Context(), id)
	if err != nil {
		a.writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.Event{}
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"location_id": id,
		"events":      events,
	})
}

func (a *api) oracleCallback(w http.ResponseWriter, r *http.Request) {
	var resp oracle.Response
	if !a.decode(w, r, &resp) {
		return
	}
	if err := resp.Validate(); err != nil {
		a.writeError(w, err)
		return
	}
	level, err := a.svc.HandleDecryption(r.Context(), resp.RequestID, resp.Cleartexts, resp.Proof)
	if err != nil {
		a.writeError(w, err)
		return
	}
	sharedobs.WriteJSON(w, http.StatusOK, map[string]any{
		"request_id":  resp.RequestID,
		"alert_level": level,
	})
}

func (a *api) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		a.writeError(w, fmt.Errorf("%w: decode request body: %v", domain.ErrMalformedInput, err))
		return false
	}
	return true
}

func (a *api) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", "error", err)
	}
	sharedobs.WriteJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps the domain error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrMalformedInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidState), errors.Is(err, domain.ErrAlreadyRevealed):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrNotComputed), errors.Is(err, domain.ErrNotRevealed):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAuthenticity):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
