package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"cookie-auth/internal/domain"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sethvargo/go-retry"
)

const (
	// AuthEventsExchange receives every auth event, routed as auth.<type>.
	AuthEventsExchange = "auth.events"
	// AuditQueue collects all auth events for the audit consumer.
	AuditQueue = "auth.audit"

	connectAttempts = 5
	connectBackoff  = 500 * time.Millisecond
)

// RabbitMQ publishes auth events to a durable topic exchange.
type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	mu      sync.Mutex
}

// NewRabbitMQ dials url, retrying with exponential backoff while the broker
// comes up, and declares the exchange and audit queue.
func NewRabbitMQ(ctx context.Context, url string) (*RabbitMQ, error) {
	var conn *amqp.Connection

	backoff := retry.WithMaxRetries(connectAttempts, retry.NewExponential(connectBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		c, err := amqp.Dial(url)
		if err != nil {
			slog.Warn("rabbitmq not reachable, retrying", slog.String("error", err.Error()))
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// Setup declares the topology. It is idempotent.
func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		AuthEventsExchange, // name
		"topic",            // type
		true,               // durable
		false,              // auto-deleted
		false,              // internal
		false,              // no-wait
		nil,                // arguments
	); err != nil {
		return fmt.Errorf("failed to declare auth events exchange: %w", err)
	}

	if _, err := r.channel.QueueDeclare(
		AuditQueue, // name
		true,       // durable
		false,      // delete when unused
		false,      // exclusive
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return fmt.Errorf("failed to declare %s queue: %w", AuditQueue, err)
	}

	if err := r.channel.QueueBind(
		AuditQueue,         // queue name
		"auth.#",           // routing key
		AuthEventsExchange, // exchange
		false,
		nil,
	); err != nil {
		return fmt.Errorf("failed to bind %s queue: %w", AuditQueue, err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// PublishAuthEvent implements domain.EventPublisher.
func (r *RabbitMQ) PublishAuthEvent(ctx context.Context, event *domain.AuthEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal auth event: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	err = r.channel.PublishWithContext(
		ctx,
		AuthEventsExchange,
		RoutingKey(event.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish auth event: %w", err)
	}
	return nil
}

// ConsumeAudit starts delivering messages from the audit queue. Deliveries
// must be acknowledged by the caller.
func (r *RabbitMQ) ConsumeAudit() (<-chan amqp.Delivery, error) {
	msgs, err := r.channel.Consume(
		AuditQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming auth events", slog.String("queue", AuditQueue))
	return msgs, nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// RoutingKey returns the topic routing key for an event type.
func RoutingKey(t domain.AuthEventType) string {
	return "auth." + string(t)
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishAuthEvent(context.Context, *domain.AuthEvent) error { return nil }
