package oracle

import (
	"fmt"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
)

// Request asks the oracle to decrypt ciphertexts. Byte fields travel as
// base64 in JSON.
type Request struct {
	RequestID   domain.RequestID    `json:"request_id"`
	Ciphertexts []domain.Ciphertext `json:"ciphertexts"`
}

// Response is the oracle callback: the concatenated cleartext words and the
// proof over them.
type Response struct {
	RequestID  domain.RequestID `json:"request_id"`
	Cleartexts []byte           `json:"cleartexts"`
	Proof      []byte           `json:"proof"`
}

// Validate rejects responses that cannot correlate to any request.
func (r Response) Validate() error {
	if r.RequestID.IsZero() {
		return fmt.Errorf("%w: missing request id", domain.ErrInvalidRequest)
	}
	return nil
}
