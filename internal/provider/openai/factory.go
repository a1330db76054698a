package openai

import (
	"errors"
	"net/http"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
	"github.com/infohyun/aramcrm-sub000/internal/provider/registry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	// ProviderType is the provider type identifier used in configuration.
	ProviderType = "openai"
	// CompatibleProviderType targets self-hosted OpenAI-compatible servers,
	// which need a base URL but may not need a key.
	CompatibleProviderType = "openai-compatible"
)

// RegisterProviderFactory registers the OpenAI gateway factories once.
func RegisterProviderFactory() {
	if !registry.IsRegistered(ProviderType) {
		registry.RegisterFactory(registry.GatewayFactory{
			Type:           ProviderType,
			APIType:        domain.APITypeOpenAI,
			Create:         CreateFromConfig,
			ValidateConfig: ValidateConfig,
		})
	}
	if !registry.IsRegistered(CompatibleProviderType) {
		registry.RegisterFactory(registry.GatewayFactory{
			Type:           CompatibleProviderType,
			APIType:        domain.APITypeOpenAI,
			Create:         CreateFromConfig,
			ValidateConfig: ValidateCompatibleConfig,
		})
	}
}

// CreateFromConfig creates a new OpenAI provider from configuration.
func CreateFromConfig(cfg config.LLMConfig) (ports.Gateway, error) {
	timeout, err := config.ParseDuration(cfg.Timeout, 0)
	if err != nil {
		return nil, err
	}

	opts := []ProviderOption{
		WithModel(cfg.Model),
		WithHTTPClient(&http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, WithBaseURL(cfg.BaseURL))
	}
	return New(cfg.APIKey, opts...), nil
}

// ValidateConfig validates the provider configuration.
func ValidateConfig(cfg config.LLMConfig) error {
	if cfg.APIKey == "" {
		return errors.New("openai requires llm.api_key")
	}
	return nil
}

// ValidateCompatibleConfig validates an openai-compatible configuration.
func ValidateCompatibleConfig(cfg config.LLMConfig) error {
	if cfg.BaseURL == "" {
		return errors.New("openai-compatible requires llm.base_url")
	}
	return nil
}
