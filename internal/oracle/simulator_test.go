package oracle

import (
	"testing"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulator_Respond(t *testing.T) {
	signer := GenerateSigner()
	sim := NewSimulator(signer)

	resp, err := sim.Respond(Request{
		RequestID:   "req-1",
		Ciphertexts: []domain.Ciphertext{simulated.Encrypt(9000)},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.RequestID("req-1"), resp.RequestID)
	v, err := domain.DecodeScalar(resp.Cleartexts)
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), v)
	assert.NoError(t, newVerifierFor(t, signer).Verify(resp.RequestID, resp.Cleartexts, resp.Proof))
}

func TestSimulator_RejectsBadInput(t *testing.T) {
	sim := NewSimulator(GenerateSigner())

	_, err := sim.Respond(Request{Ciphertexts: []domain.Ciphertext{simulated.Encrypt(1)}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = sim.Respond(Request{RequestID: "req-2", Ciphertexts: []domain.Ciphertext{{0x01}}})
	assert.ErrorIs(t, err, simulated.ErrMalformedCiphertext)
}

func TestResponse_Validate(t *testing.T) {
	assert.ErrorIs(t, Response{}.Validate(), domain.ErrInvalidRequest)
	assert.NoError(t, Response{RequestID: "req-1"}.Validate())
}
