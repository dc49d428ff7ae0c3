package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestNewEvent_UsesPackageClock(t *testing.T) {
	at := time.Date(2025, time.August, 14, 9, 30, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(at))
	t.Cleanup(func() { SetClock(nil) })

	a := NewEvent(EventReadingSubmitted, "zone-1")
	b := NewEvent(EventReadingSubmitted, "zone-1")

	assert.Equal(t, at, a.OccurredAt)
	assert.Equal(t, LocationID("zone-1"), a.LocationID)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}
