// Package oracle defines the contract with the external decryption oracle:
// the request/response messages and how a response proof is checked.
//
// A proof is a Schnorr signature over Ed25519 by the oracle's key. The signed
// message is the SHA-256 digest of a domain tag, the length-prefixed request
// id and the cleartext bytes, so a proof cannot be replayed for another
// request or another payload.
package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/group/edwards25519"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/util/key"
)

const digestTag = "smoke-propagation/decryption/v1"

var suite = edwards25519.NewBlakeSHA256Ed25519()

// Digest returns the message a proof signs for (id, cleartexts).
func Digest(id domain.RequestID, cleartexts []byte) []byte {
	h := sha256.New()
	h.Write([]byte(digestTag))
	var n [4]byte
	binary.BigEndian.PutUint32(n[:], uint32(len(id)))
	h.Write(n[:])
	h.Write([]byte(id))
	h.Write(cleartexts)
	return h.Sum(nil)
}

// Verifier checks proofs against the oracle's public key.
type Verifier struct {
	public kyber.Point
}

// NewVerifier parses a hex-encoded Ed25519 public key.
func NewVerifier(publicKeyHex string) (*Verifier, error) {
	raw, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode oracle public key: %w", err)
	}
	pub := suite.Point()
	if err := pub.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("parse oracle public key: %w", err)
	}
	return &Verifier{public: pub}, nil
}

// Verify returns nil only when proof is the oracle's signature over
// (id, cleartexts).
func (v *Verifier) Verify(id domain.RequestID, cleartexts, proof []byte) error {
	if len(proof) == 0 {
		return fmt.Errorf("empty proof")
	}
	if err := schnorr.Verify(suite, v.public, Digest(id, cleartexts), proof); err != nil {
		return fmt.Errorf("schnorr verify: %w", err)
	}
	return nil
}

// Signer produces proofs. Only the development oracle and tests hold one.
type Signer struct {
	pair *key.Pair
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() *Signer {
	return &Signer{pair: key.NewKeyPair(suite)}
}

// NewSigner loads a signer from a hex-encoded private scalar.
func NewSigner(privateKeyHex string) (*Signer, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode oracle private key: %w", err)
	}
	priv := suite.Scalar()
	if err := priv.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("parse oracle private key: %w", err)
	}
	return &Signer{pair: &key.Pair{Private: priv, Public: suite.Point().Mul(priv, nil)}}, nil
}

// Sign returns the proof for (id, cleartexts).
func (s *Signer) Sign(id domain.RequestID, cleartexts []byte) ([]byte, error) {
	return schnorr.Sign(suite, s.pair.Private, Digest(id, cleartexts))
}

// PublicKeyHex returns the verifier key in the form NewVerifier expects.
func (s *Signer) PublicKeyHex() string {
	return marshalHex(s.pair.Public)
}

// PrivateKeyHex returns the signing key in the form NewSigner expects.
func (s *Signer) PrivateKeyHex() string {
	return marshalHex(s.pair.Private)
}

func marshalHex(m interface{ MarshalBinary() ([]byte, error) }) string {
	raw, err := m.MarshalBinary()
	if err != nil {
		// Ed25519 points and scalars always marshal.
		panic(err)
	}
	return hex.EncodeToString(raw)
}
