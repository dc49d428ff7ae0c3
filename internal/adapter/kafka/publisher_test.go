package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/couchcryptid/smoke-propagation-service/internal/domain"
	"github.com/couchcryptid/smoke-propagation-service/internal/observability"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestEventPublisher_DeliversAndStops(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := newRecordingWriter()
	p := newEventPublisher(w, 4, discardLogger(), observability.NewMetricsForTesting())
	p.Start(context.Background())

	event := domain.NewEvent(domain.EventModelComputed, "zone-1")
	require.NoError(t, p.Publish(context.Background(), event))

	msg := w.await(t)
	assert.Equal(t, []byte("zone-1"), msg.Key)
	var decoded domain.Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)

	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), event), errPublisherStopped)
}

type countingWriter struct {
	mu        sync.Mutex
	delivered int
}

func (c *countingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered += len(msgs)
	return nil
}

func (c *countingWriter) Close() error { return nil }

func TestEventPublisher_StopDeliversEveryAcceptedEvent(t *testing.T) {
	defer goleak.VerifyNone(t)

	for range 20 {
		w := &countingWriter{}
		p := newEventPublisher(w, 4096, discardLogger(), observability.NewMetricsForTesting())
		p.Start(context.Background())

		var (
			wg       sync.WaitGroup
			accepted atomic.Int64
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					if p.Publish(context.Background(), domain.NewEvent(domain.EventReadingSubmitted, "zone-1")) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		require.NoError(t, p.Stop(context.Background()))
		wg.Wait()

		w.mu.Lock()
		assert.Equal(t, int(accepted.Load()), w.delivered)
		w.mu.Unlock()
	}
}

func TestEventPublisher_NotStarted(t *testing.T) {
	p := newEventPublisher(newRecordingWriter(), 1, discardLogger(), observability.NewMetricsForTesting())
	err := p.Publish(context.Background(), domain.NewEvent(domain.EventModelComputed, "zone-1"))
	assert.ErrorIs(t, err, errPublisherNotStarted)
}

type blockingWriter struct {
	release chan struct{}
	entered chan struct{}
}

func (b *blockingWriter) WriteMessages(ctx context.Context, _ ...kafkago.Message) error {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func (b *blockingWriter) Close() error { return nil }

func TestEventPublisher_QueueFullFailsFast(t *testing.T) {
	defer goleak.VerifyNone(t)

	w := &blockingWriter{release: make(chan struct{}), entered: make(chan struct{}, 1)}
	p := newEventPublisher(w, 1, discardLogger(), observability.NewMetricsForTesting())
	p.Start(context.Background())

	event := domain.NewEvent(domain.EventReadingSubmitted, "zone-1")
	require.NoError(t, p.Publish(context.Background(), event))
	<-w.entered // first event is being delivered
	require.NoError(t, p.Publish(context.Background(), event))
	assert.ErrorIs(t, p.Publish(context.Background(), event), errPublisherQueueFull)

	close(w.release)
	require.NoError(t, p.Stop(context.Background()))
}
