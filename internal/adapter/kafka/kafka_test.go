package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/smoke-propagation-service/internal/config"
	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/oracle"
	"github.com/couchcryptid/smoke-propagation-service/internal/pipeline"
	"github.com/couchcryptid/smoke-propagation-service/internal/simulated"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingWriter struct {
	ch     chan kafkago.Message
	err    error
	closed bool
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{ch: make(chan kafkago.Message, 8)}
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	for _, msg := range msgs {
		r.ch <- msg
	}
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func (r *recordingWriter) await(t *testing.T) kafkago.Message {
	t.Helper()
	select {
	case msg := <-r.ch:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for write")
	}
	return kafkago.Message{}
}

func TestMapMessage(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("zone-1"),
		Value:     []byte(`{"contributor":"a"}`),
		Topic:     "encrypted-sensor-readings",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("station-7")},
		},
	}

	out := mapMessage(msg, nil)

	assert.Equal(t, []byte("zone-1"), out.Key)
	assert.JSONEq(t, `{"contributor":"a"}`, string(out.Value))
	assert.Equal(t, "encrypted-sensor-readings", out.Topic)
	assert.Equal(t, 2, out.Partition)
	assert.Equal(t, int64(42), out.Offset)
	assert.Equal(t, now, out.Timestamp)
	assert.Equal(t, "station-7", out.Headers["source"])
}

type fakeFetcher struct {
	msg       kafkago.Message
	committed []kafkago.Message
}

func (f *fakeFetcher) FetchMessage(context.Context) (kafkago.Message, error) { return f.msg, nil }

func (f *fakeFetcher) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Close() error { return nil }

func TestReader_FetchCommitsThroughHook(t *testing.T) {
	f := &fakeFetcher{msg: kafkago.Message{Topic: "t", Offset: 7}}
	r := &Reader{reader: f}

	msg, err := r.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, f.committed)

	require.NoError(t, msg.Commit(context.Background()))
	require.Len(t, f.committed, 1)
	assert.Equal(t, int64(7), f.committed[0].Offset)
}

func TestSerializeEvent(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	event := domain.Event{
		ID:         "evt-1",
		Type:       domain.EventAlertRevealed,
		LocationID: "zone-1",
		AlertLevel: domain.AlertHazardous,
		OccurredAt: now,
	}

	msg, err := serializeEvent(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("zone-1"), msg.Key)
	assert.Contains(t, string(msg.Value), `"alert_level":"Hazardous"`)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("alert_revealed"), msg.Headers[0].Value)
	assert.Equal(t, "occurred_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)
}

func TestNewWriter_ShortBatchTimeout(t *testing.T) {
	w := newWriter(&config.Config{KafkaBrokers: []string{"localhost:9092"}}, "decryption-requests")
	assert.Equal(t, "decryption-requests", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
	assert.Equal(t, writeBatchTimeout, w.BatchTimeout)
	assert.Less(t, w.BatchTimeout, 100*time.Millisecond)
}

func TestOracleBridge_RequestDecryption(t *testing.T) {
	w := newRecordingWriter()
	b := &OracleBridge{writer: w, logger: discardLogger()}
	ct := simulated.Encrypt(40)

	id := b.NewRequestID()
	_, err := uuid.Parse(string(id))
	require.NoError(t, err)
	assert.NotEqual(t, id, b.NewRequestID())

	require.NoError(t, b.RequestDecryption(context.Background(), id, []domain.Ciphertext{ct}))

	msg := w.await(t)
	assert.Equal(t, []byte(id), msg.Key)
	var req oracle.Request
	require.NoError(t, json.Unmarshal(msg.Value, &req))
	assert.Equal(t, id, req.RequestID)
	require.Len(t, req.Ciphertexts, 1)
	assert.True(t, ct.Equal(req.Ciphertexts[0]))
}

func TestOracleBridge_WriteFailure(t *testing.T) {
	w := newRecordingWriter()
	w.err = errors.New("leader not available")
	b := &OracleBridge{writer: w, logger: discardLogger()}

	err := b.RequestDecryption(context.Background(), b.NewRequestID(), []domain.Ciphertext{simulated.Encrypt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

type fakeLedger struct {
	got []domain.SensorReading
	err error
}

func (f *fakeLedger) Submit(_ context.Context, r domain.SensorReading) (domain.ReadingID, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.got = append(f.got, r)
	return domain.ReadingID(len(f.got)), nil
}

func TestReadingsHandler(t *testing.T) {
	ledger := &fakeLedger{}
	h := NewReadingsHandler(ledger, discardLogger())
	value, err := json.Marshal(domain.SensorReading{
		Contributor:            "station-7",
		EncryptedSmokeLevel:    simulated.Encrypt(3),
		EncryptedWindSpeed:     simulated.Encrypt(4),
		EncryptedWindDirection: simulated.Encrypt(5),
	})
	require.NoError(t, err)

	require.NoError(t, h.Handle(context.Background(), pipeline.Message{Key: []byte("zone-9"), Value: value}))
	require.Len(t, ledger.got, 1)
	assert.Equal(t, domain.LocationID("zone-9"), ledger.got[0].LocationID)
	assert.True(t, simulated.Encrypt(4).Equal(ledger.got[0].EncryptedWindSpeed))

	err = h.Handle(context.Background(), pipeline.Message{Value: []byte("{not json")})
	require.ErrorIs(t, err, domain.ErrMalformedInput)
	assert.False(t, pipeline.IsRetryable(err))

	ledger.err = errors.New("database is locked")
	err = h.Handle(context.Background(), pipeline.Message{Key: []byte("zone-9"), Value: value})
	require.Error(t, err)
	assert.True(t, pipeline.IsRetryable(err))
}

type fakeCallback struct {
	mu    sync.Mutex
	calls []domain.RequestID
	err   error
}

func (f *fakeCallback) HandleDecryption(_ context.Context, id domain.RequestID, _, _ []byte) (domain.AlertLevel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return domain.AlertGood, f.err
}

func TestResponseHandler(t *testing.T) {
	cb := &fakeCallback{}
	h := NewResponseHandler(cb, discardLogger())

	value, err := json.Marshal(oracle.Response{RequestID: "req-1", Cleartexts: domain.EncodeScalar(40), Proof: []byte{1}})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), pipeline.Message{Value: value}))
	assert.Equal(t, []domain.RequestID{"req-1"}, cb.calls)

	missing, err := json.Marshal(oracle.Response{Cleartexts: domain.EncodeScalar(40)})
	require.NoError(t, err)
	err = h.Handle(context.Background(), pipeline.Message{Value: missing})
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	assert.Len(t, cb.calls, 1)

	cb.err = domain.ErrAuthenticity
	err = h.Handle(context.Background(), pipeline.Message{Value: value})
	require.ErrorIs(t, err, domain.ErrAuthenticity)
	assert.False(t, pipeline.IsRetryable(err))

	cb.err = errors.New("disk I/O error")
	err = h.Handle(context.Background(), pipeline.Message{Value: value})
	require.Error(t, err)
	assert.True(t, pipeline.IsRetryable(err))
}

func TestResponder_AnswersRequests(t *testing.T) {
	signer := oracle.GenerateSigner()
	w := newRecordingWriter()
	r := &Responder{answerer: oracle.NewSimulator(signer), writer: w, logger: discardLogger()}

	value, err := json.Marshal(oracle.Request{RequestID: "req-1", Ciphertexts: []domain.Ciphertext{simulated.Encrypt(9000)}})
	require.NoError(t, err)
	require.NoError(t, r.Handle(context.Background(), pipeline.Message{Value: value}))

	msg := w.await(t)
	var resp oracle.Response
	require.NoError(t, json.Unmarshal(msg.Value, &resp))
	assert.Equal(t, domain.RequestID("req-1"), resp.RequestID)

	verifier, err := oracle.NewVerifier(signer.PublicKeyHex())
	require.NoError(t, err)
	require.NoError(t, verifier.Verify(resp.RequestID, resp.Cleartexts, resp.Proof))
	v, err := domain.DecodeScalar(resp.Cleartexts)
	require.NoError(t, err)
	assert.Equal(t, uint64(9000), v)
}

func TestResponder_WriteFailureIsRetryable(t *testing.T) {
	w := newRecordingWriter()
	w.err = errors.New("not enough replicas")
	r := &Responder{answerer: oracle.NewSimulator(oracle.GenerateSigner()), writer: w, logger: discardLogger()}

	value, err := json.Marshal(oracle.Request{RequestID: "req-1", Ciphertexts: []domain.Ciphertext{simulated.Encrypt(1)}})
	require.NoError(t, err)
	err = r.Handle(context.Background(), pipeline.Message{Value: value})
	require.Error(t, err)
	assert.True(t, pipeline.IsRetryable(err))

	err = r.Handle(context.Background(), pipeline.Message{Value: []byte("garbage")})
	require.ErrorIs(t, err, domain.ErrMalformedInput)
	assert.False(t, pipeline.IsRetryable(err))
}
