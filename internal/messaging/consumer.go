package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"cookie-auth/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AuditSink receives decoded auth events.
type AuditSink func(ctx context.Context, event *domain.AuthEvent) error

// AuditConsumer drains the audit queue into a sink.
type AuditConsumer struct {
	rmq  *RabbitMQ
	sink AuditSink
}

func NewAuditConsumer(rmq *RabbitMQ, sink AuditSink) *AuditConsumer {
	return &AuditConsumer{rmq: rmq, sink: sink}
}

// Run consumes until ctx is cancelled or the delivery channel closes.
func (c *AuditConsumer) Run(ctx context.Context) error {
	msgs, err := c.rmq.ConsumeAudit()
	if err != nil {
		return err
	}
	return c.drain(ctx, msgs)
}

func (c *AuditConsumer) drain(ctx context.Context, msgs <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping audit consumer")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("audit delivery channel closed")
			}
			c.handle(ctx, msg)
		}
	}
}

// handle acks processed and malformed messages and requeues sink failures.
func (c *AuditConsumer) handle(ctx context.Context, msg amqp.Delivery) {
	event, err := DecodeAuthEvent(msg.Body)
	if err != nil {
		slog.Error("dropping malformed auth event",
			slog.String("error", err.Error()),
			slog.Int("body_size", len(msg.Body)))
		_ = msg.Nack(false, false)
		return
	}

	if err := c.sink(ctx, event); err != nil {
		slog.Error("audit sink failed",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()))
		_ = msg.Nack(false, !msg.Redelivered)
		return
	}

	_ = msg.Ack(false)
}

// DecodeAuthEvent parses a published auth event.
func DecodeAuthEvent(body []byte) (*domain.AuthEvent, error) {
	var event domain.AuthEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if event.Type == "" {
		return nil, errors.New("auth event has no type")
	}
	return &event, nil
}

// LogSink writes each event as a structured log line.
func LogSink(logger *slog.Logger) AuditSink {
	return func(ctx context.Context, event *domain.AuthEvent) error {
		logger.InfoContext(ctx, "auth event",
			slog.String("type", string(event.Type)),
			slog.String("user_id", event.UserID),
			slog.String("email", event.Email),
			slog.String("remote_addr", event.RemoteAddr),
			slog.Time("occurred_at", event.OccurredAt),
		)
		return nil
	}
}
