package domain

import (
	"fmt"
	"strings"
	"time"
)

// SensorReading is one contributed, still-encrypted observation. Readings are
// immutable once accepted by the ledger.
type SensorReading struct {
	ID                     ReadingID  `json:"id"`
	LocationID             LocationID `json:"location_id"`
	Contributor            string     `json:"contributor"`
	EncryptedSmokeLevel    Ciphertext `json:"encrypted_smoke_level"`
	EncryptedWindSpeed     Ciphertext `json:"encrypted_wind_speed"`
	EncryptedWindDirection Ciphertext `json:"encrypted_wind_direction"`
	Timestamp              time.Time  `json:"timestamp"`
}

// Validate checks the fields a submission must carry. It does not inspect
// ciphertext contents; that is the Scheme's job.
func (r SensorReading) Validate() error {
	if err := r.LocationID.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Contributor) == "" {
		return fmt.Errorf("%w: contributor is required", ErrMalformedInput)
	}
	for name, ct := range map[string]Ciphertext{
		"encrypted_smoke_level":    r.EncryptedSmokeLevel,
		"encrypted_wind_speed":     r.EncryptedWindSpeed,
		"encrypted_wind_direction": r.EncryptedWindDirection,
	} {
		if len(ct) == 0 {
			return fmt.Errorf("%w: %s is required", ErrMalformedInput, name)
		}
	}
	return nil
}

// Clone returns a deep copy of the reading.
func (r SensorReading) Clone() SensorReading {
	r.EncryptedSmokeLevel = r.EncryptedSmokeLevel.Clone()
	r.EncryptedWindSpeed = r.EncryptedWindSpeed.Clone()
	r.EncryptedWindDirection = r.EncryptedWindDirection.Clone()
	return r
}
