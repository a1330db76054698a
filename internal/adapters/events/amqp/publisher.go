// Package amqp publishes lifecycle events to a RabbitMQ topic exchange.
// The routing key is the event type, e.g. "ticket.created".
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp091 "github.com/rabbitmq/amqp091-go"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// Channel is the subset of *amqp091.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// Dialer opens a publishing channel.
type Dialer func() (Channel, error)

type Publisher struct {
	open     Dialer
	closer   func() error
	exchange string
	logger   *slog.Logger
}

// NewPublisher dials url and declares exchange as a durable topic exchange.
func NewPublisher(url, exchange string, logger *slog.Logger) (*Publisher, error) {
	if exchange == "" {
		return nil, fmt.Errorf("amqp: exchange required")
	}
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: open channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp: declare exchange %s: %w", exchange, err)
	}

	open := func() (Channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			return nil, err
		}
		return ch, nil
	}
	p := NewPublisherWithDialer(open, exchange, logger)
	p.closer = conn.Close
	return p, nil
}

// NewPublisherWithDialer builds a publisher over an existing channel source.
func NewPublisherWithDialer(open Dialer, exchange string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{open: open, exchange: exchange, logger: logger}
}

// Publish sends event as a persistent JSON message.
func (p *Publisher) Publish(ctx context.Context, event *domain.LifecycleEvent) error {
	if event == nil {
		return fmt.Errorf("amqp: nil event")
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("amqp: marshal event: %w", err)
	}

	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("amqp: open channel: %w", err)
	}
	defer ch.Close()

	msgID := event.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	key := string(event.Type)
	err = ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     msgID,
		CorrelationId: event.ConversationID,
		Timestamp:     event.Timestamp,
		Body:          body,
	})
	if err != nil {
		return fmt.Errorf("amqp: publish %s: %w", key, err)
	}
	p.logger.DebugContext(ctx, "published", slog.String("key", key), slog.String("exchange", p.exchange))
	return nil
}

func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
