package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	m := r.msgs[0]
	r.msgs = r.msgs[1:]
	return m, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	placed := testPlaced()
	require.NoError(t, p.NotifyOrderPlaced(context.Background(), placed))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, placed.Order.ID, string(msg.Key))
	assert.Equal(t, EventOrderPlaced, eventType(msg))

	decoded, err := DecodePlaced(msg.Value)
	require.NoError(t, err)
	assert.Equal(t, placed.Order.ID, decoded.Order.ID)
}

func TestKafkaPublisher_Error(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisher(w)

	err := p.NotifyOrderPlaced(context.Background(), testPlaced())
	var nErr *NotificationError
	require.ErrorAs(t, err, &nErr)
	assert.Equal(t, "kafka", nErr.Channel)
}

func TestRelay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	good := testPlaced()
	other := testPlaced()
	other.Order.ID = "second"

	reader := &fakeReader{
		cancel: cancel,
		msgs: []kafka.Message{
			{Offset: 1, Value: EncodePlaced(good), Headers: []kafka.Header{{Key: headerEventType, Value: []byte(EventOrderPlaced)}}},
			{Offset: 2, Value: []byte(`{broken`)},
			{Offset: 3, Value: []byte(`{}`), Headers: []kafka.Header{{Key: headerEventType, Value: []byte("order.cancelled")}}},
			{Offset: 4, Value: EncodePlaced(other)},
		},
	}

	var got []string
	next := SenderFunc(func(_ context.Context, p order.Placed) error {
		got = append(got, p.Order.ID)
		if p.Order.ID == "second" {
			return errors.New("smtp down")
		}
		return nil
	})

	relay := NewRelay(reader, next, zaptest.NewLogger(t), WithRelayMaxRetries(1))
	relay.retry.newBackOff = fastBackOff
	require.NoError(t, relay.Run(ctx))

	assert.Equal(t, []string{good.Order.ID, "second", "second"}, got)
	assert.Equal(t, []int64{1, 2, 3, 4}, reader.committed)
}

func TestRelay_RetriesTransientFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		msgs:   []kafka.Message{{Offset: 7, Value: EncodePlaced(testPlaced())}},
	}

	attempts := 0
	next := SenderFunc(func(context.Context, order.Placed) error {
		attempts++
		if attempts == 1 {
			return errors.New("smtp unavailable")
		}
		return nil
	})

	relay := NewRelay(reader, next, zaptest.NewLogger(t))
	relay.retry.newBackOff = fastBackOff
	require.NoError(t, relay.Run(ctx))

	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int64{7}, reader.committed)
}

func TestRelay_ShutdownLeavesMessageUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{
		cancel: cancel,
		msgs:   []kafka.Message{{Offset: 9, Value: EncodePlaced(testPlaced())}},
	}
	next := SenderFunc(func(context.Context, order.Placed) error {
		cancel()
		return errors.New("interrupted")
	})

	relay := NewRelay(reader, next, zaptest.NewLogger(t))
	relay.retry.newBackOff = fastBackOff
	require.NoError(t, relay.Run(ctx))

	assert.Empty(t, reader.committed)
}
