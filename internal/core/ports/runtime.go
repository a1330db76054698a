// Package ports defines the core interfaces of the orchestrator: the
// language-model gateway, the agents, storage, configuration, and events.
package ports

import (
	"context"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

// Gateway is the language-model completion service.
// Implementations must be safe for concurrent use.
type Gateway interface {
	Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)
}

// Agent is one unit of the pipeline. Every agent takes the same input and
// returns the same output shape.
type Agent interface {
	ID() domain.AgentID
	Name() string
	Run(ctx context.Context, in *domain.AgentInput) (*domain.AgentOutput, error)
}

// ConfigProvider loads and manages configuration.
// Implementations: file-based with hot reload.
type ConfigProvider interface {
	Load(ctx context.Context) (*config.Config, error)
	Watch(ctx context.Context, onChange func(*config.Config)) error
	Close() error
}

// EventPublisher publishes lifecycle events.
// Implementations: log (default), Kafka, AMQP.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.LifecycleEvent) error
	Close() error
}
