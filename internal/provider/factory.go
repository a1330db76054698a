// Package provider builds the language-model gateway from configuration.
//
// # Adding a New Provider
//
// Implement ports.Gateway in a subpackage and expose an explicit
// RegisterProviderFactory function that calls registry.RegisterFactory.
// Wire it from RegisterBuiltins so no init() side effects are needed.
package provider

import (
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
	"github.com/infohyun/aramcrm-sub000/internal/provider/anthropic"
	"github.com/infohyun/aramcrm-sub000/internal/provider/openai"
	"github.com/infohyun/aramcrm-sub000/internal/provider/registry"
	"github.com/infohyun/aramcrm-sub000/internal/tokens"
)

// RegisterBuiltins registers the bundled gateway factories. Safe to call
// more than once.
func RegisterBuiltins() {
	anthropic.RegisterProviderFactory()
	openai.RegisterProviderFactory()
}

// NewGateway creates the configured gateway and wraps it with request
// defaults, token-count fallback and tracing.
func NewGateway(cfg config.LLMConfig, counter *tokens.Registry) (ports.Gateway, error) {
	base, err := registry.CreateFromFactory(cfg)
	if err != nil {
		return nil, err
	}
	return Wrap(base, cfg, counter), nil
}

// Wrap applies the standard decorators to an existing gateway.
func Wrap(base ports.Gateway, cfg config.LLMConfig, counter *tokens.Registry) ports.Gateway {
	var gw ports.Gateway = base
	if counter != nil {
		gw = NewUsageFallbackGateway(gw, counter, cfg.Model)
	}
	gw = NewDefaultsGateway(gw, cfg)
	return NewTracingGateway(gw, cfg.Provider)
}
