package domain

import "errors"

// Error taxonomy. Operations wrap these with context; match with errors.Is.
var (
	// ErrMalformedInput: missing or invalid identifiers or ciphertexts.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidState: operation attempted out of sequence.
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidRequest: unknown or already consumed correlation key.
	ErrInvalidRequest = errors.New("invalid decryption request")

	// ErrAuthenticity: the oracle proof did not verify. Nothing is revealed.
	ErrAuthenticity = errors.New("decryption proof verification failed")

	// ErrAlreadyRevealed: duplicate or replayed disclosure.
	ErrAlreadyRevealed = errors.New("alert already revealed")

	// ErrNotComputed: the prediction has not been computed yet.
	ErrNotComputed = errors.New("prediction not computed")

	// ErrNotRevealed: the alert level has not been revealed yet.
	ErrNotRevealed = errors.New("alert not revealed")
)
