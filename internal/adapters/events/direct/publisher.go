// Package direct provides an in-process event publisher. Events are written
// to the structured log and handed synchronously to any subscribed handlers.
package direct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// Handler receives every published event.
type Handler func(ctx context.Context, event *domain.LifecycleEvent) error

// Publisher implements ports.EventPublisher for single-instance deployments.
type Publisher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

// NewPublisher creates a new direct event publisher. A nil logger disables
// event logging.
func NewPublisher(logger *slog.Logger, handlers ...Handler) *Publisher {
	return &Publisher{logger: logger, handlers: handlers}
}

// Subscribe adds h to the handlers called on every Publish.
func (p *Publisher) Subscribe(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Publish logs event and calls every handler in subscription order. Handler
// failures are joined; one failing handler does not skip the rest.
func (p *Publisher) Publish(ctx context.Context, event *domain.LifecycleEvent) error {
	if event == nil {
		return fmt.Errorf("nil event")
	}

	p.mu.RLock()
	closed := p.closed
	handlers := append([]Handler(nil), p.handlers...)
	p.mu.RUnlock()

	if closed {
		return fmt.Errorf("publisher closed")
	}

	if p.logger != nil {
		p.logger.InfoContext(ctx, "lifecycle event",
			slog.String("event_id", event.ID),
			slog.String("type", string(event.Type)),
			slog.String("conversation_id", event.ConversationID),
			slog.Any("data", event.Data),
		)
	}

	var errs []error
	for _, h := range handlers {
		if err := h(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops further publishing.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
