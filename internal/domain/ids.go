package domain

import (
	"fmt"
	"strings"
)

// LocationID is the shared aggregation key agencies tag their readings with.
type LocationID string

// Validate rejects empty or blank identifiers.
func (id LocationID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return fmt.Errorf("%w: location id is required", ErrMalformedInput)
	}
	return nil
}

// ReadingID identifies one submitted reading. IDs are assigned by the ledger,
// start at 1 and are never reused.
type ReadingID uint64

// RequestID is the oracle-assigned correlation key for a decryption request.
// The zero value never correlates to a location.
type RequestID string

// IsZero reports whether the id is the empty sentinel.
func (id RequestID) IsZero() bool {
	return strings.TrimSpace(string(id)) == ""
}
