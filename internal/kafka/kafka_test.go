package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "order.created", 8)
	p.Start()

	require.NoError(t, PublishJSON(p, []byte("o-1"), "OrderCreated", 1, map[string]string{"order_id": "o-1"}))
	p.Publish([]byte("o-2"), []byte(`{}`))
	p.Close()
	p.Close()
	p.WaitClosed()

	require.Len(t, w.msgs, 2)
	assert.True(t, w.closed)
	assert.Equal(t, "o-1", string(w.msgs[0].Key))
	assert.Equal(t, "OrderCreated", Header(w.msgs[0], HeaderEventType))
	assert.Equal(t, "1", Header(w.msgs[0], HeaderEventVersion))
	assert.Equal(t, "", Header(w.msgs[1], HeaderEventType))
}

type stalledWriter struct{}

func (stalledWriter) WriteMessages(ctx context.Context, _ ...kafka.Message) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledWriter) Close() error { return nil }

func TestProducerPublishDoesNotBlockOnStalledBroker(t *testing.T) {
	p := newProducer(stalledWriter{}, "order.created", 2)
	p.writeTimeout = 50 * time.Millisecond
	p.Start()

	returned := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			p.Publish([]byte("o"), []byte(`{}`))
		}
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked behind a stalled writer")
	}
	assert.GreaterOrEqual(t, p.Dropped(), int64(2))

	p.Close()
	p.WaitClosed()
}

func TestProducerPublishAfterClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer(w, "order.status_changed", 4)
	p.Start()
	p.Close()

	assert.NotPanics(t, func() { p.Publish([]byte("o-1"), []byte(`{}`)) })
	p.WaitClosed()
	assert.Empty(t, w.msgs)
	assert.Equal(t, int64(1), p.Dropped())
}

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.queue) > 0 {
		m := r.queue[0]
		r.queue = r.queue[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func runConsumer(t *testing.T, c *Consumer, h Handler) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestConsumerRetriesInPartitionOrder(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: "order.created", Partition: 0, Offset: 1},
		{Topic: "order.created", Partition: 0, Offset: 2},
		{Topic: "order.created", Partition: 0, Offset: 3},
	}}
	c := newConsumer(r, 4)
	c.backoff, c.maxBackoff = time.Millisecond, 2*time.Millisecond

	var mu sync.Mutex
	var handled []int64
	failures := 0
	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		if m.Offset == 2 && failures < 2 {
			failures++
			return errors.New("smtp down")
		}
		handled = append(handled, m.Offset)
		return nil
	}

	stop := runConsumer(t, c, h)
	assert.Eventually(t, func() bool { return len(r.commits()) == 3 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []int64{1, 2, 3}, r.commits())
	assert.Equal(t, []int64{1, 2, 3}, handled)
	assert.Equal(t, 2, failures)
}

func TestConsumerNeverCommitsPastAFailure(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: "order.created", Partition: 0, Offset: 1},
		{Topic: "order.created", Partition: 0, Offset: 2},
		{Topic: "order.created", Partition: 0, Offset: 3},
	}}
	c := newConsumer(r, 2)
	c.backoff, c.maxBackoff = time.Millisecond, time.Millisecond

	var attempts atomic.Int32
	h := func(_ context.Context, m kafka.Message) error {
		if m.Offset == 2 {
			attempts.Add(1)
			return errors.New("smtp down")
		}
		return nil
	}

	stop := runConsumer(t, c, h)
	assert.Eventually(t, func() bool { return attempts.Load() >= 3 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []int64{1}, r.commits())
}

func TestConsumerDeadLettersAfterMaxAttempts(t *testing.T) {
	r := &fakeReader{queue: []kafka.Message{
		{Topic: "order.created", Partition: 1, Offset: 7, Key: []byte("o-7"), Value: []byte(`{}`)},
		{Topic: "order.created", Partition: 1, Offset: 8},
	}}
	dlq := &fakeWriter{}
	c := newConsumer(r, 1).WithDeadLetter(dlq, 3)
	c.backoff, c.maxBackoff = time.Millisecond, time.Millisecond

	var attempts atomic.Int32
	h := func(_ context.Context, m kafka.Message) error {
		if m.Offset == 7 {
			attempts.Add(1)
			return errors.New("template broken")
		}
		return nil
	}

	stop := runConsumer(t, c, h)
	assert.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, []int64{7, 8}, r.commits())
	assert.Equal(t, int32(3), attempts.Load())
	require.Len(t, dlq.msgs, 1)
	dead := dlq.msgs[0]
	assert.Equal(t, "o-7", string(dead.Key))
	assert.Equal(t, "order.created", Header(dead, HeaderDeadTopic))
	assert.Equal(t, "1", Header(dead, HeaderDeadPartition))
	assert.Equal(t, "7", Header(dead, HeaderDeadOffset))
	assert.Equal(t, "template broken", Header(dead, HeaderDeadError))
}

func TestConsumerLanesArePerPartition(t *testing.T) {
	c := newConsumer(&fakeReader{}, 4)
	a := kafka.Message{Topic: "order.created", Partition: 2, Offset: 1}
	b := kafka.Message{Topic: "order.created", Partition: 2, Offset: 99}
	assert.Equal(t, c.laneOf(a), c.laneOf(b))
	assert.Less(t, c.laneOf(a), 4)
}

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	p, err := UnwrapPayload[payload](json.RawMessage(`{"order_id":"o-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "o-1", p.OrderID)

	_, err = UnwrapPayload[payload](json.RawMessage(`[`))
	assert.Error(t, err)
}
