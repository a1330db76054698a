package orchestrator

import (
	"fmt"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/classifier"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

// DefaultRecordTimeout bounds the stages that record a finished run.
const DefaultRecordTimeout = 15 * time.Second

// DefaultFallbackResponse is returned when every specialist fails.
const DefaultFallbackResponse = "죄송합니다. 지금은 요청을 처리하지 못했습니다. 잠시 후 다시 시도해 주시거나 상담원 연결을 요청해 주세요."

// Options are the run-time knobs of the pipeline. They can be replaced while
// the orchestrator is serving; each run uses one snapshot.
type Options struct {
	TranslationEnabled bool
	SentimentEnabled   bool
	QAEnabled          bool
	DefaultLocale      string
	// AgentTimeout bounds every language-model call. Zero means no bound.
	AgentTimeout   time.Duration
	MaxAgents      int
	MaxConcurrency int
	// FallbackResponse replaces the reply when no specialist succeeds.
	FallbackResponse string
	// RecordTimeout bounds the actions, usage, log and event stages. They
	// run after the specialists answered and ignore request cancellation.
	RecordTimeout time.Duration
}

// DefaultOptions enables every optional stage.
func DefaultOptions() Options {
	return Options{
		TranslationEnabled: true,
		SentimentEnabled:   true,
		QAEnabled:          true,
		DefaultLocale:      "ko",
		AgentTimeout:       30 * time.Second,
		MaxAgents:          classifier.DefaultMaxAgents,
		MaxConcurrency:     classifier.DefaultMaxAgents,
		FallbackResponse:   DefaultFallbackResponse,
		RecordTimeout:      DefaultRecordTimeout,
	}
}

// OptionsFromConfig converts the orchestrator config section.
func OptionsFromConfig(cfg config.OrchestratorConfig) (Options, error) {
	timeout, err := config.ParseDuration(cfg.AgentTimeout, 30*time.Second)
	if err != nil {
		return Options{}, fmt.Errorf("invalid agent_timeout %q: %w", cfg.AgentTimeout, err)
	}
	record, err := config.ParseDuration(cfg.RecordTimeout, DefaultRecordTimeout)
	if err != nil {
		return Options{}, fmt.Errorf("invalid record_timeout %q: %w", cfg.RecordTimeout, err)
	}
	o := Options{
		TranslationEnabled: cfg.TranslationEnabled,
		SentimentEnabled:   cfg.SentimentEnabled,
		QAEnabled:          cfg.QAEnabled,
		DefaultLocale:      cfg.DefaultLocale,
		AgentTimeout:       timeout,
		MaxAgents:          cfg.MaxAgents,
		MaxConcurrency:     cfg.MaxConcurrency,
		FallbackResponse:   cfg.FallbackResponse,
		RecordTimeout:      record,
	}
	return o.normalized(), nil
}

func (o Options) normalized() Options {
	if o.DefaultLocale == "" {
		o.DefaultLocale = "ko"
	}
	if o.MaxAgents < 1 {
		o.MaxAgents = classifier.DefaultMaxAgents
	}
	if o.MaxConcurrency < 1 {
		o.MaxConcurrency = o.MaxAgents
	}
	if o.FallbackResponse == "" {
		o.FallbackResponse = DefaultFallbackResponse
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = DefaultRecordTimeout
	}
	return o
}
