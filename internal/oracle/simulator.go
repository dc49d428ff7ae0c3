package oracle

import (
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/simulated"
)

// Simulator answers requests for simulated ciphertexts. It stands in for the
// real threshold decryption network during local runs and tests.
type Simulator struct {
	signer *Signer
}

// NewSimulator creates a Simulator that signs with signer.
func NewSimulator(signer *Signer) *Simulator {
	return &Simulator{signer: signer}
}

// Respond decrypts every ciphertext in req and signs the result.
func (s *Simulator) Respond(req Request) (Response, error) {
	if req.RequestID.IsZero() {
		return Response{}, fmt.Errorf("%w: missing request id", domain.ErrInvalidRequest)
	}
	cleartexts := make([]byte, 0, len(req.Ciphertexts)*domain.ScalarSize)
	for i, ct := range req.Ciphertexts {
		v, err := simulated.Decrypt(ct)
		if err != nil {
			return Response{}, fmt.Errorf("decrypt ciphertext %d: %w", i, err)
		}
		cleartexts = append(cleartexts, domain.EncodeScalar(v)...)
	}
	proof, err := s.signer.Sign(req.RequestID, cleartexts)
	if err != nil {
		return Response{}, fmt.Errorf("sign response: %w", err)
	}
	return Response{RequestID: req.RequestID, Cleartexts: cleartexts, Proof: proof}, nil
}
