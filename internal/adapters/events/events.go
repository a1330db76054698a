// Package events builds the configured lifecycle event publisher.
package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/infohyun/aramcrm-sub000/internal/adapters/events/amqp"
	"github.com/infohyun/aramcrm-sub000/internal/adapters/events/direct"
	"github.com/infohyun/aramcrm-sub000/internal/adapters/events/kafka"
	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

// New returns the publisher selected by cfg.Type.
func New(cfg config.EventsConfig, logger *slog.Logger) (ports.EventPublisher, error) {
	switch cfg.Type {
	case "", "none":
		return Discard{}, nil
	case "log":
		return direct.NewPublisher(logger), nil
	case "kafka":
		return kafka.NewPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	case "amqp":
		if cfg.AMQP.URL == "" {
			return nil, fmt.Errorf("events.amqp.url required")
		}
		return amqp.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logger)
	default:
		return nil, fmt.Errorf("unknown event publisher type: %s", cfg.Type)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, *domain.LifecycleEvent) error { return nil }
func (Discard) Close() error { return nil }
