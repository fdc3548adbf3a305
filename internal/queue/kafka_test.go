package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/alexnthnz/notification-relay/internal/notification"
)

type memoryWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *memoryWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *memoryWriter) Close() error { return nil }

// memoryReader replays queued messages, then reports io.EOF
type memoryReader struct {
	mu        sync.Mutex
	queue     []kafka.Message
	fetchErrs []error
	committed []int64
}

func (r *memoryReader) FetchMessage(context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.queue) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.queue[0]
	r.queue = r.queue[1:]
	return m, nil
}

func (r *memoryReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *memoryReader) Close() error { return nil }

func testMessage(id string) notification.QueuedRequest {
	return notification.QueuedRequest{
		ID: id,
		Request: notification.NotificationRequest{
			Type:      "welcome",
			Channel:   notification.ChannelSMS,
			Recipient: "+15550001111",
		},
		EnqueuedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestProducer_PublishRequest(t *testing.T) {
	w := &memoryWriter{}
	p := &Producer{writer: w, logger: zap.NewNop()}

	require.NoError(t, p.PublishRequest(context.Background(), testMessage("r1")))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "+15550001111", string(w.msgs[0].Key))

	var decoded notification.QueuedRequest
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, testMessage("r1"), decoded)

	w.err = errors.New("leader not available")
	assert.Error(t, p.PublishRequest(context.Background(), testMessage("r2")))
}

func TestConsumer_ConsumeRequests(t *testing.T) {
	good, err := json.Marshal(testMessage("r1"))
	require.NoError(t, err)
	flaky, err := json.Marshal(testMessage("r3"))
	require.NoError(t, err)

	r := &memoryReader{
		fetchErrs: []error{errors.New("rebalance in progress")},
		queue: []kafka.Message{
			{Offset: 1, Value: good},
			{Offset: 2, Value: []byte("not json")},
			{Offset: 3, Value: flaky},
		},
	}
	c := &Consumer{reader: r, logger: zap.NewNop(), backoff: time.Millisecond, attempts: 3}

	var handled []string
	err = c.ConsumeRequests(context.Background(), func(_ context.Context, msg notification.QueuedRequest) error {
		handled = append(handled, msg.ID)
		if msg.ID == "r3" && len(handled) < 4 {
			return errors.New("store down")
		}
		return nil
	})
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"r1", "r3", "r3", "r3"}, handled)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestConsumer_PersistentHandlerFailureLeavesOffsetUncommitted(t *testing.T) {
	good, err := json.Marshal(testMessage("r1"))
	require.NoError(t, err)
	failing, err := json.Marshal(testMessage("r2"))
	require.NoError(t, err)
	next, err := json.Marshal(testMessage("r3"))
	require.NoError(t, err)

	r := &memoryReader{queue: []kafka.Message{
		{Offset: 1, Value: good},
		{Offset: 2, Value: failing},
		{Offset: 3, Value: next},
	}}
	c := &Consumer{reader: r, logger: zap.NewNop(), backoff: time.Millisecond, attempts: 2}

	storeDown := errors.New("store down")
	var handled []string
	err = c.ConsumeRequests(context.Background(), func(_ context.Context, msg notification.QueuedRequest) error {
		handled = append(handled, msg.ID)
		if msg.ID == "r2" {
			return storeDown
		}
		return nil
	})
	require.ErrorIs(t, err, storeDown)
	assert.Contains(t, err.Error(), "offset 2")
	assert.Equal(t, []string{"r1", "r2", "r2"}, handled)
	assert.Equal(t, []int64{1}, r.committed)
}

func TestConsumer_StopsOnCancel(t *testing.T) {
	r := &memoryReader{fetchErrs: []error{errors.New("broker down")}}
	c := &Consumer{reader: r, logger: zap.NewNop(), backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- c.ConsumeRequests(ctx, func(context.Context, notification.QueuedRequest) error { return nil })
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}
