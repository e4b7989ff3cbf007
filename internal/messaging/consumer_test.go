package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cookie-auth/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ackRecorder struct {
	mu      sync.Mutex
	acks    int
	nacks   int
	requeue []bool
}

func (a *ackRecorder) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks++
	return nil
}

func (a *ackRecorder) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nacks++
	a.requeue = append(a.requeue, requeue)
	return nil
}

func (a *ackRecorder) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func delivery(t *testing.T, ack amqp.Acknowledger, v any, redelivered bool) amqp.Delivery {
	t.Helper()
	var body []byte
	switch b := v.(type) {
	case []byte:
		body = b
	default:
		var err error
		body, err = json.Marshal(v)
		require.NoError(t, err)
	}
	return amqp.Delivery{Acknowledger: ack, Body: body, Redelivered: redelivered}
}

func TestAuditConsumer_Handle(t *testing.T) {
	event := &domain.AuthEvent{
		Type:       domain.EventLoginFailed,
		Email:      "a@x.com",
		RemoteAddr: "203.0.113.7",
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("delivers_and_acks", func(t *testing.T) {
		var got *domain.AuthEvent
		c := NewAuditConsumer(nil, func(ctx context.Context, e *domain.AuthEvent) error {
			got = e
			return nil
		})
		ack := &ackRecorder{}

		c.handle(context.Background(), delivery(t, ack, event, false))

		require.NotNil(t, got)
		assert.Equal(t, event.Type, got.Type)
		assert.Equal(t, "a@x.com", got.Email)
		assert.True(t, event.OccurredAt.Equal(got.OccurredAt))
		assert.Equal(t, 1, ack.acks)
	})

	t.Run("malformed_is_dropped", func(t *testing.T) {
		called := false
		c := NewAuditConsumer(nil, func(ctx context.Context, e *domain.AuthEvent) error {
			called = true
			return nil
		})
		ack := &ackRecorder{}

		c.handle(context.Background(), delivery(t, ack, []byte("{not json"), false))
		c.handle(context.Background(), delivery(t, ack, []byte(`{"email":"a@x.com"}`), false))

		assert.False(t, called)
		assert.Equal(t, 2, ack.nacks)
		assert.Equal(t, []bool{false, false}, ack.requeue)
	})

	t.Run("sink_failure_requeues_once", func(t *testing.T) {
		c := NewAuditConsumer(nil, func(ctx context.Context, e *domain.AuthEvent) error {
			return errors.New("sink down")
		})
		ack := &ackRecorder{}

		c.handle(context.Background(), delivery(t, ack, event, false))
		c.handle(context.Background(), delivery(t, ack, event, true))

		assert.Equal(t, []bool{true, false}, ack.requeue)
		assert.Zero(t, ack.acks)
	})
}

func TestAuditConsumer_DrainStops(t *testing.T) {
	c := NewAuditConsumer(nil, func(ctx context.Context, e *domain.AuthEvent) error { return nil })

	msgs := make(chan amqp.Delivery)
	close(msgs)
	assert.Error(t, c.drain(context.Background(), msgs))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.drain(ctx, make(chan amqp.Delivery)))
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	err := LogSink(logger)(context.Background(), &domain.AuthEvent{
		Type:   domain.EventSignup,
		UserID: "user-1",
		Email:  "a@x.com",
	})
	require.NoError(t, err)

	assert.Contains(t, buf.String(), `"type":"signup"`)
	assert.Contains(t, buf.String(), `"user_id":"user-1"`)
	assert.NotContains(t, buf.String(), "password")
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "auth.login_failed", RoutingKey(domain.EventLoginFailed))
	assert.Equal(t, "auth.signup", RoutingKey(domain.EventSignup))
}

func TestNopPublisher(t *testing.T) {
	var p domain.EventPublisher = NopPublisher{}
	assert.NoError(t, p.PublishAuthEvent(context.Background(), &domain.AuthEvent{Type: domain.EventLogout}))
}
