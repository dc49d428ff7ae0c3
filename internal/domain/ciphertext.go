package domain

import "bytes"

// Ciphertext is the transport representation of an encrypted integer. The
// bytes are meaningful only to the Scheme that produced them.
type Ciphertext []byte

// Clone returns an independent copy so stored values cannot be mutated
// through a caller's slice.
func (c Ciphertext) Clone() Ciphertext {
	if c == nil {
		return nil
	}
	out := make(Ciphertext, len(c))
	copy(out, c)
	return out
}

// Equal reports bit-for-bit equality.
func (c Ciphertext) Equal(other Ciphertext) bool {
	return bytes.Equal(c, other)
}

// Scheme is the homomorphic arithmetic capability the ledger relies on.
// Implementations must make Add commutative and associative so that
// aggregation is independent of submission order. No operation reveals a
// plaintext.
type Scheme interface {
	// Zero returns an encryption of 0.
	Zero() Ciphertext

	// Add returns an encryption of a + b.
	Add(a, b Ciphertext) (Ciphertext, error)

	// Mul returns an encryption of a × b.
	Mul(a, b Ciphertext) (Ciphertext, error)

	// DivScalar returns an encryption of a / n, truncated. n must be non-zero.
	DivScalar(a Ciphertext, n uint64) (Ciphertext, error)

	// Validate checks that c is a well-formed ciphertext for this scheme.
	Validate(c Ciphertext) error
}
