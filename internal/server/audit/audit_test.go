package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/logging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

type fakePublisher struct {
	err      error
	exchange string
	key      string
	msg      amqp.Publishing
	calls    int
}

func (f *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	f.calls++
	f.exchange, f.key, f.msg = exchange, key, msg
	return f.err
}

func TestLogSink_WritesEvent(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logging.NewJSONLogger(&buf, "debug"))

	sink.Emit(context.Background(), Event{
		Type:   EventRefreshReuseDetected,
		UserID: "42",
		At:     time.Now(),
		Detail: map[string]any{"revoked": int64(1)},
	})

	line := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "refresh_reuse_detected", line["event"])
	assert.Equal(t, "42", line["user_id"])
	assert.Equal(t, "audit", line["module"])
	assert.EqualValues(t, 1, line["revoked"])
}

func TestLogSink_InfoForRoutineEvents(t *testing.T) {
	var buf bytes.Buffer
	NewLogSink(logging.NewJSONLogger(&buf, "info")).Emit(context.Background(), Event{Type: EventLogin, UserID: "42"})

	line := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
}

func TestMultiSink_FansOut(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	MultiSink{a, b, Nop{}}.Emit(context.Background(), Event{Type: EventLogout, UserID: "1"})

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestAMQPSink_Publishes(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewAMQPSink(pub, "security", logging.Nop{})
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	sink.Emit(context.Background(), Event{Type: EventFamilyRevoked, UserID: "42", At: at})

	require.Equal(t, 1, pub.calls)
	assert.Equal(t, "security", pub.exchange)
	assert.Equal(t, "auth.family_revoked", pub.key)
	assert.Equal(t, "application/json", pub.msg.ContentType)
	assert.NotEmpty(t, pub.msg.MessageId)

	var got Event
	require.NoError(t, json.Unmarshal(pub.msg.Body, &got))
	assert.Equal(t, EventFamilyRevoked, got.Type)
	assert.Equal(t, "42", got.UserID)
	assert.True(t, got.At.Equal(at))
}

func TestAMQPSink_PublishErrorIsSwallowed(t *testing.T) {
	var buf bytes.Buffer
	pub := &fakePublisher{err: errors.New("channel closed")}
	sink := NewAMQPSink(pub, "security", logging.NewJSONLogger(&buf, "info"))

	sink.Emit(context.Background(), Event{Type: EventLogin, UserID: "42"})

	assert.Equal(t, 1, pub.calls)
	assert.Contains(t, buf.String(), "channel closed")
}

func TestAMQPSink_CancelledCallerStillPublishes(t *testing.T) {
	pub := &fakePublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	NewAMQPSink(pub, "security", logging.Nop{}).Emit(ctx, Event{Type: EventLogout, UserID: "42"})
	assert.Equal(t, 1, pub.calls)
}
