package runtime

import (
	"fmt"
	"log/slog"

	"github.com/infohyun/aramcrm-sub000/internal/adapters/config/file"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// Option is a functional option for configuring an App.
type Option func(*App) error

// WithFileConfig uses file-based configuration with hot-reload (default).
// Changes to the orchestrator section apply without a restart.
func WithFileConfig(path string) Option {
	return func(a *App) error {
		provider, err := file.NewProvider(path)
		if err != nil {
			return fmt.Errorf("create file config provider: %w", err)
		}
		a.config = provider
		return nil
	}
}

// WithConfigProvider sets a custom config provider.
func WithConfigProvider(provider ports.ConfigProvider) Option {
	return func(a *App) error {
		a.config = provider
		return nil
	}
}

// WithStorageProvider replaces the storage selected by storage.type.
func WithStorageProvider(provider ports.StorageProvider) Option {
	return func(a *App) error {
		a.storage = provider
		return nil
	}
}

// WithEventPublisher replaces the publisher selected by events.type.
func WithEventPublisher(publisher ports.EventPublisher) Option {
	return func(a *App) error {
		a.events = publisher
		return nil
	}
}

// WithGateway replaces the language-model provider selected by llm.provider.
// The standard request decorators are still applied.
func WithGateway(gateway ports.Gateway) Option {
	return func(a *App) error {
		a.gateway = gateway
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *App) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		a.logger = logger
		return nil
	}
}
