// Package registry maps the llm.provider config value to the factory that
// builds the gateway. Provider packages register explicitly from
// provider.RegisterBuiltins; nothing registers from init().
package registry

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

// ErrUnknownProvider is returned for a provider type nobody registered.
var ErrUnknownProvider = errors.New("unknown provider type")

// GatewayFactory builds gateways for one provider type.
type GatewayFactory struct {
	Type           string         // the llm.provider value, e.g. "anthropic"
	APIType        domain.APIType // wire API the gateway speaks
	Create         func(cfg config.LLMConfig) (ports.Gateway, error)
	ValidateConfig func(cfg config.LLMConfig) error // optional
}

var (
	mu        sync.RWMutex
	factories = map[string]GatewayFactory{}
)

// RegisterFactory adds f. It panics on an incomplete or duplicate factory.
func RegisterFactory(f GatewayFactory) {
	switch {
	case f.Type == "":
		panic("registry: gateway factory type cannot be empty")
	case f.Create == nil:
		panic(fmt.Sprintf("registry: gateway factory %q has no Create", f.Type))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, dup := factories[f.Type]; dup {
		panic(fmt.Sprintf("registry: gateway factory %q already registered", f.Type))
	}
	factories[f.Type] = f
}

// IsRegistered reports whether providerType has a factory.
func IsRegistered(providerType string) bool {
	mu.RLock()
	defer mu.RUnlock()
	_, ok := factories[providerType]
	return ok
}

// ListProviderTypes returns the registered types in sorted order.
func ListProviderTypes() []string {
	mu.RLock()
	defer mu.RUnlock()
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// CreateFromFactory validates cfg with the factory registered for
// cfg.Provider and builds the gateway.
func CreateFromFactory(cfg config.LLMConfig) (ports.Gateway, error) {
	mu.RLock()
	f, ok := factories[cfg.Provider]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrUnknownProvider, cfg.Provider, ListProviderTypes())
	}

	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, fmt.Errorf("invalid %s configuration: %w", cfg.Provider, err)
		}
	}
	return f.Create(cfg)
}

// ClearFactories drops every registration. Tests only.
func ClearFactories() {
	mu.Lock()
	defer mu.Unlock()
	clear(factories)
}
