package pipeline

import (
	"fmt"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

// WebhookOrder places webhook stages after the built-in post-join stages.
const WebhookOrder = 100

// WebhookStagesFromConfig builds one stage per configured webhook.
func WebhookStagesFromConfig(cfgs []config.WebhookConfig) ([]StageConfig, error) {
	stages := make([]StageConfig, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))

	for i, cfg := range cfgs {
		name := cfg.Name
		if name == "" {
			name = fmt.Sprintf("webhook-%d", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("webhook %s: duplicate name", name)
		}
		seen[name] = true

		if cfg.URL == "" {
			return nil, fmt.Errorf("webhook %s: url required", name)
		}
		timeout, err := config.ParseDuration(cfg.Timeout, 5*time.Second)
		if err != nil {
			return nil, fmt.Errorf("webhook %s: invalid timeout %q: %w", name, cfg.Timeout, err)
		}
		if cfg.Retries < 0 {
			return nil, fmt.Errorf("webhook %s: retries must not be negative", name)
		}

		stages = append(stages, StageConfig{
			Order: WebhookOrder + i,
			Stage: NewWebhookStage(WebhookStageConfig{
				Name:    name,
				URL:     cfg.URL,
				Timeout: timeout,
				Retries: cfg.Retries,
				Headers: cfg.Headers,

				AllowPrivate: cfg.AllowPrivate,
			}),
		})
	}
	return stages, nil
}
