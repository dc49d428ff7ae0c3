package domain

// LocationState is the disclosure lifecycle position of one location.
type LocationState int

const (
	StateNoData LocationState = iota
	StateAwaitingComputation
	StateComputed
	StateDisclosureRequested
	StateRevealed
)

func (s LocationState) String() string {
	switch s {
	case StateNoData:
		return "no_data"
	case StateAwaitingComputation:
		return "awaiting_computation"
	case StateComputed:
		return "computed"
	case StateDisclosureRequested:
		return "disclosure_requested"
	case StateRevealed:
		return "revealed"
	default:
		return "unknown"
	}
}

// MarshalText renders the state as its snake_case name in JSON.
func (s LocationState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
