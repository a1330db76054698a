package anthropic

import (
	"errors"
	"net/http"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
	"github.com/infohyun/aramcrm-sub000/internal/provider/registry"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ProviderType is the provider type identifier used in configuration.
const ProviderType = "anthropic"

// RegisterProviderFactory registers the Anthropic gateway factory once.
func RegisterProviderFactory() {
	if registry.IsRegistered(ProviderType) {
		return
	}
	registry.RegisterFactory(registry.GatewayFactory{
		Type:           ProviderType,
		APIType:        domain.APITypeAnthropic,
		Create:         CreateFromConfig,
		ValidateConfig: ValidateConfig,
	})
}

// CreateFromConfig creates a new Anthropic provider from configuration.
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
		return errors.New("anthropic requires llm.api_key")
	}
	return nil
}
