// Package simulated implements domain.Scheme over plaintext integers.
//
// Ciphertexts are a 4-byte tag followed by the value as a big-endian uint64.
// Arithmetic wraps modulo 2^64 and division truncates, the same contract a
// 64-bit encrypted integer backend offers. Nothing here is confidential: it is
// the ENCRYPTION_BACKEND=simulated setting, meant for tests and local
// development.
package simulated

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
)

var tag = []byte("SIM1")

const ciphertextSize = 4 + 8

var (
	ErrMalformedCiphertext = errors.New("malformed simulated ciphertext")
	ErrDivideByZero        = errors.New("division by zero")
)

// Scheme is a stateless plaintext-simulating domain.Scheme.
type Scheme struct{}

// New returns a Scheme.
func New() *Scheme { return &Scheme{} }

// Encrypt wraps v in the simulated ciphertext format.
func Encrypt(v uint64) domain.Ciphertext {
	out := make(domain.Ciphertext, ciphertextSize)
	copy(out, tag)
	binary.BigEndian.PutUint64(out[len(tag):], v)
	return out
}

// Decrypt unwraps a simulated ciphertext. Only the development oracle and
// tests call this; the ledger never does.
func Decrypt(c domain.Ciphertext) (uint64, error) {
	if len(c) != ciphertextSize || !bytes.Equal(c[:len(tag)], tag) {
		return 0, fmt.Errorf("%w: %d bytes", ErrMalformedCiphertext, len(c))
	}
	return binary.BigEndian.Uint64(c[len(tag):]), nil
}

func (s *Scheme) Zero() domain.Ciphertext { return Encrypt(0) }

func (s *Scheme) Add(a, b domain.Ciphertext) (domain.Ciphertext, error) {
	x, y, err := decryptPair(a, b)
	if err != nil {
		return nil, err
	}
	return Encrypt(x + y), nil
}

func (s *Scheme) Mul(a, b domain.Ciphertext) (domain.Ciphertext, error) {
	x, y, err := decryptPair(a, b)
	if err != nil {
		return nil, err
	}
	return Encrypt(x * y), nil
}

func (s *Scheme) DivScalar(a domain.Ciphertext, n uint64) (domain.Ciphertext, error) {
	if n == 0 {
		return nil, ErrDivideByZero
	}
	x, err := Decrypt(a)
	if err != nil {
		return nil, err
	}
	return Encrypt(x / n), nil
}

func (s *Scheme) Validate(c domain.Ciphertext) error {
	_, err := Decrypt(c)
	return err
}

func decryptPair(a, b domain.Ciphertext) (uint64, uint64, error) {
	x, err := Decrypt(a)
	if err != nil {
		return 0, 0, err
	}
	y, err := Decrypt(b)
	if err != nil {
		return 0, 0, err
	}
	return x, y, nil
}
