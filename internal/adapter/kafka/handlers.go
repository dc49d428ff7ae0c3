package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/pipeline"
)

// Ledger accepts encrypted readings.
type Ledger interface {
	Submit(ctx context.Context, reading domain.SensorReading) (domain.ReadingID, error)
}

// DecryptionCallback applies oracle answers.
type DecryptionCallback interface {
	HandleDecryption(ctx context.Context, requestID domain.RequestID, cleartexts, proof []byte) (domain.AlertLevel, error)
}

// ReadingsHandler submits readings consumed from the readings topic.
type ReadingsHandler struct {
	ledger Ledger
	logger *slog.Logger
}

// NewReadingsHandler creates a ReadingsHandler.
func NewReadingsHandler(ledger Ledger, logger *slog.Logger) *ReadingsHandler {
	return &ReadingsHandler{ledger: ledger, logger: logger}
}

// Handle implements pipeline.Handler. When the payload omits location_id the
// message key is used.
func (h *ReadingsHandler) Handle(ctx context.Context, msg pipeline.Message) error {
	var reading domain.SensorReading
	if err := json.Unmarshal(msg.Value, &reading); err != nil {
		return fmt.Errorf("%w: decode reading: %v", domain.ErrMalformedInput, err)
	}
	if reading.LocationID == "" {
		reading.LocationID = domain.LocationID(msg.Key)
	}
	id, err := h.ledger.Submit(ctx, reading)
	if err != nil {
		return retryUnlessRejected(err)
	}
	h.logger.Debug("reading consumed", "location_id", reading.LocationID, "reading_id", id, "offset", msg.Offset)
	return nil
}

// ResponseHandler applies decryption responses consumed from the oracle.
type ResponseHandler struct {
	callback DecryptionCallback
	logger   *slog.Logger
}

// NewResponseHandler creates a ResponseHandler.
func NewResponseHandler(callback DecryptionCallback, logger *slog.Logger) *ResponseHandler {
	return &ResponseHandler{callback: callback, logger: logger}
}

// Handle implements pipeline.Handler. Every rejection is permanent: a
// replayed or forged response is never retried. Other failures, such as a
// store write, are retried.
func (h *ResponseHandler) Handle(ctx context.Context, msg pipeline.Message) error {
	var resp oracle.Response
	if err := json.Unmarshal(msg.Value, &resp); err != nil {
		return fmt.Errorf("%w: decode decryption response: %v", domain.ErrMalformedInput, err)
	}
	if err := resp.Validate(); err != nil {
		return err
	}
	level, err := h.callback.HandleDecryption(ctx, resp.RequestID, resp.Cleartexts, resp.Proof)
	if err != nil {
		return retryUnlessRejected(err)
	}
	h.logger.Debug("decryption response applied", "request_id", resp.RequestID, "alert_level", level)
	return nil
}

var rejections = []error{
	domain.ErrMalformedInput,
	domain.ErrInvalidState,
	domain.ErrInvalidRequest,
	domain.ErrAuthenticity,
	domain.ErrAlreadyRevealed,
}

// retryUnlessRejected passes domain rejections through as permanent and
// marks anything else retryable.
func retryUnlessRejected(err error) error {
	for _, rejection := range rejections {
		if errors.Is(err, rejection) {
			return err
		}
	}
	return pipeline.Retryable(err)
}
