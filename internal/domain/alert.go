package domain

import (
	"encoding/binary"
	"fmt"
)

// AlertLevel is the public, discretized form of a revealed prediction.
type AlertLevel string

const (
	AlertGood          AlertLevel = "Good"
	AlertModerate      AlertLevel = "Moderate"
	AlertUnhealthy     AlertLevel = "Unhealthy"
	AlertVeryUnhealthy AlertLevel = "Very Unhealthy"
	AlertHazardous     AlertLevel = "Hazardous"
)

// alertBands is ordered from most to least severe. A value belongs to the
// first band whose exclusive lower bound it exceeds.
var alertBands = []struct {
	above uint64
	level AlertLevel
}{
	{8000, AlertHazardous},
	{5000, AlertVeryUnhealthy},
	{3000, AlertUnhealthy},
	{1000, AlertModerate},
}

// ClassifyPrediction maps a decrypted prediction onto exactly one alert level.
func ClassifyPrediction(v uint64) AlertLevel {
	for _, b := range alertBands {
		if v > b.above {
			return b.level
		}
	}
	return AlertGood
}

// Severity ranks levels from 0 (Good) to 4 (Hazardous). Unknown levels rank -1.
func (l AlertLevel) Severity() int {
	switch l {
	case AlertGood:
		return 0
	case AlertModerate:
		return 1
	case AlertUnhealthy:
		return 2
	case AlertVeryUnhealthy:
		return 3
	case AlertHazardous:
		return 4
	default:
		return -1
	}
}

// ScalarSize is the width of one cleartext value in an oracle callback.
const ScalarSize = 8

// EncodeScalar writes v as a big-endian cleartext word.
func EncodeScalar(v uint64) []byte {
	out := make([]byte, ScalarSize)
	binary.BigEndian.PutUint64(out, v)
	return out
}

// DecodeScalar reads the single cleartext value of a one-ciphertext request.
func DecodeScalar(cleartexts []byte) (uint64, error) {
	if len(cleartexts) != ScalarSize {
		return 0, fmt.Errorf("%w: expected %d cleartext bytes, got %d", ErrMalformedInput, ScalarSize, len(cleartexts))
	}
	return binary.BigEndian.Uint64(cleartexts), nil
}
