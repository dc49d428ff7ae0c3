package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a committed state transition.
type EventType string

const (
	EventReadingSubmitted    EventType = "reading_submitted"
	EventModelComputed       EventType = "model_computed"
	EventDisclosureRequested EventType = "disclosure_requested"
	EventAlertRevealed       EventType = "alert_revealed"
)

// Event is the audit record emitted after a transition commits. Optional
// fields are set only where the transition carries them.
type Event struct {
	ID         string     `json:"event_id"`
	Type       EventType  `json:"type"`
	LocationID LocationID `json:"location_id"`
	ReadingID  ReadingID  `json:"reading_id,omitempty"`
	RequestID  RequestID  `json:"request_id,omitempty"`
	AlertLevel AlertLevel `json:"alert_level,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the package clock.
func NewEvent(typ EventType, location LocationID) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		LocationID: location,
		OccurredAt: Now(),
	}
}
