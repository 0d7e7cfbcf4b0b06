package publisher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockOutbox struct {
	mu        sync.Mutex
	events    []domain.OutboxEvent
	published map[string]bool
	fetchErr  error
}

func newMockOutbox(events ...domain.OutboxEvent) *mockOutbox {
	return &mockOutbox{events: events, published: make(map[string]bool)}
}

func (m *mockOutbox) Append(_ context.Context, e domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *mockOutbox) Pending(_ context.Context, limit int) ([]domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []domain.OutboxEvent
	for _, e := range m.events {
		if !m.published[e.ID] && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *mockOutbox) MarkPublished(_ context.Context, id string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.published[id] {
		return domain.ErrNotFound
	}
	m.published[id] = true
	return nil
}

func (m *mockOutbox) isPublished(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.published[id]
}

type mockWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	failKey string
	closed  bool
}

func (w *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		if string(m.Key) == w.failKey {
			return errors.New("leader not available")
		}
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *mockWriter) Close() error {
	w.closed = true
	return nil
}

func (w *mockWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.msgs)
}

type countingObserver struct {
	mu         sync.Mutex
	ok, failed int
}

func (c *countingObserver) ObservePublish(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.ok++
	} else {
		c.failed++
	}
}

func event(id, orderID string) domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:          id,
		AggregateID: orderID,
		EventType:   domain.EventOrderPlaced,
		Payload:     []byte(`{"order_id":"` + orderID + `"}`),
		CreatedAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishPending_PublishesAndMarks(t *testing.T) {
	outbox := newMockOutbox(event("e1", "o1"), event("e2", "o2"))
	writer := &mockWriter{}
	obs := &countingObserver{}
	p := NewOutboxPoller(outbox, writer, time.Second, 10, obs, quietLogger())

	n := p.PublishPending(context.Background())
	assert.Equal(t, 2, n)
	require.Len(t, writer.msgs, 2)
	assert.Equal(t, "o1", string(writer.msgs[0].Key))
	assert.Equal(t, `{"order_id":"o1"}`, string(writer.msgs[0].Value))
	assert.Equal(t, "event_type", writer.msgs[0].Headers[0].Key)
	assert.Equal(t, domain.EventOrderPlaced, string(writer.msgs[0].Headers[0].Value))
	assert.True(t, outbox.isPublished("e1"))
	assert.True(t, outbox.isPublished("e2"))
	assert.Equal(t, 2, obs.ok)

	// nothing left on the next tick
	assert.Zero(t, p.PublishPending(context.Background()))
	assert.Len(t, writer.msgs, 2)
}

func TestPublishPending_FailedEventStaysPending(t *testing.T) {
	outbox := newMockOutbox(event("e1", "o1"), event("e2", "o2"))
	writer := &mockWriter{failKey: "o1"}
	obs := &countingObserver{}
	p := NewOutboxPoller(outbox, writer, time.Second, 10, obs, quietLogger())

	assert.Equal(t, 1, p.PublishPending(context.Background()))
	assert.False(t, outbox.isPublished("e1"))
	assert.True(t, outbox.isPublished("e2"))
	assert.Equal(t, 1, obs.failed)

	writer.failKey = ""
	assert.Equal(t, 1, p.PublishPending(context.Background()))
	assert.True(t, outbox.isPublished("e1"))
}

func TestPublishPending_RespectsBatchSize(t *testing.T) {
	outbox := newMockOutbox(event("e1", "o1"), event("e2", "o2"), event("e3", "o3"))
	writer := &mockWriter{}
	p := NewOutboxPoller(outbox, writer, time.Second, 2, nil, quietLogger())

	assert.Equal(t, 2, p.PublishPending(context.Background()))
	assert.Equal(t, 1, p.PublishPending(context.Background()))
}

func TestPublishPending_FetchError(t *testing.T) {
	outbox := newMockOutbox(event("e1", "o1"))
	outbox.fetchErr = errors.New("database is closed")
	writer := &mockWriter{}
	p := NewOutboxPoller(outbox, writer, time.Second, 10, nil, quietLogger())

	assert.Zero(t, p.PublishPending(context.Background()))
	assert.Zero(t, writer.count())
}

func TestRun_StopsOnCancel(t *testing.T) {
	outbox := newMockOutbox(event("e1", "o1"))
	writer := &mockWriter{}
	p := NewOutboxPoller(outbox, writer, 5*time.Millisecond, 10, nil, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return outbox.isPublished("e1") }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	require.NoError(t, p.Close())
	assert.True(t, writer.closed)
}
