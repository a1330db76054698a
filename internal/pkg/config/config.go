package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment overrides. Nested keys use a
// double underscore, e.g. ORCH_LLM__API_KEY.
const EnvPrefix = "ORCH_"

// DefaultPath is the config file read when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	LLM          LLMConfig          `koanf:"llm"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Pricing      PricingConfig      `koanf:"pricing"`
	Events       EventsConfig       `koanf:"events"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

type ServerConfig struct {
	Port           int    `koanf:"port"`
	RequestTimeout string `koanf:"request_timeout"` // Duration string like "60s"
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // sqlite, postgres, mysql, memory
	SQLite SQLiteConfig `koanf:"sqlite"`
	// Database is the generic database configuration for multi-dialect support
	Database DatabaseConfig `koanf:"database"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// DatabaseConfig is the generic database configuration supporting multiple dialects.
type DatabaseConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres, mysql
	DSN    string `koanf:"dsn"`    // Data source name / connection string
}

// LLMConfig selects and configures the language-model provider.
type LLMConfig struct {
	Provider    string  `koanf:"provider"` // anthropic, openai
	APIKey      string  `koanf:"api_key"`
	BaseURL     string  `koanf:"base_url"`
	Model       string  `koanf:"model"`
	MaxTokens   int     `koanf:"max_tokens"`
	Temperature float64 `koanf:"temperature"`
	Timeout     string  `koanf:"timeout"` // HTTP client timeout
}

// OrchestratorConfig toggles optional stages and bounds the fan-out.
type OrchestratorConfig struct {
	TranslationEnabled bool   `koanf:"translation_enabled"`
	SentimentEnabled   bool   `koanf:"sentiment_enabled"`
	QAEnabled          bool   `koanf:"qa_enabled"`
	DefaultLocale      string `koanf:"default_locale"`
	AgentTimeout       string `koanf:"agent_timeout"` // per language-model call
	MaxAgents          int    `koanf:"max_agents"`
	MaxConcurrency     int    `koanf:"max_concurrency"`
	FallbackResponse   string `koanf:"fallback_response"`
	RecordTimeout      string `koanf:"record_timeout"` // actions, usage, logs and events
	// Webhooks receive a summary of every finished run.
	Webhooks []WebhookConfig `koanf:"webhooks"`
}

// WebhookConfig configures one outbound webhook.
type WebhookConfig struct {
	Name    string            `koanf:"name"`
	URL     string            `koanf:"url"`
	Timeout string            `koanf:"timeout"`
	Retries int               `koanf:"retries"`
	Headers map[string]string `koanf:"headers"`

	// AllowPrivate permits loopback and private-network URLs.
	AllowPrivate bool `koanf:"allow_private"`
}

// PricingConfig holds the per-million-token rates in USD.
type PricingConfig struct {
	InputPerMillion  float64 `koanf:"input_per_million"`
	OutputPerMillion float64 `koanf:"output_per_million"`
}

// EventsConfig selects the lifecycle event publisher.
type EventsConfig struct {
	Type  string      `koanf:"type"` // none, log, kafka, amqp
	Kafka KafkaConfig `koanf:"kafka"`
	AMQP  AMQPConfig  `koanf:"amqp"`
}

type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type AMQPConfig struct {
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

type TelemetryConfig struct {
	ServiceName    string `koanf:"service_name"`
	TracingEnabled bool   `koanf:"tracing_enabled"`
	MetricsEnabled bool   `koanf:"metrics_enabled"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

var defaults = map[string]any{
	"server.port":                      8080,
	"server.request_timeout":           "60s",
	"storage.type":                     "sqlite",
	"storage.sqlite.path":              "./data/orchestrator.db",
	"llm.provider":                     "anthropic",
	"llm.model":                        "claude-sonnet-4-20250514",
	"llm.max_tokens":                   1024,
	"llm.temperature":                  0.3,
	"llm.timeout":                      "60s",
	"orchestrator.translation_enabled": true,
	"orchestrator.sentiment_enabled":   true,
	"orchestrator.qa_enabled":          true,
	"orchestrator.default_locale":      "ko",
	"orchestrator.agent_timeout":       "30s",
	"orchestrator.max_agents":          3,
	"orchestrator.max_concurrency":     3,
	"orchestrator.record_timeout":      "15s",
	"pricing.input_per_million":        3.0,
	"pricing.output_per_million":       15.0,
	"events.type":                      "log",
	"events.kafka.topic":               "orchestrator-events",
	"events.amqp.exchange":             "orchestrator",
	"telemetry.service_name":           "aramcrm-orchestrator",
	"telemetry.metrics_enabled":        true,
}

// LoadFile reads the YAML file at path (a missing file is fine) and applies
// ORCH_ environment overrides on top of it.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		// File not found is OK, we'll use env vars
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.LLM.APIKey = substituteEnvVars(cfg.LLM.APIKey)
	cfg.Storage.Database.DSN = substituteEnvVars(cfg.Storage.Database.DSN)
	cfg.Events.AMQP.URL = substituteEnvVars(cfg.Events.AMQP.URL)
	for _, wh := range cfg.Orchestrator.Webhooks {
		for k, v := range wh.Headers {
			wh.Headers[k] = substituteEnvVars(v)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"server.request_timeout":      c.Server.RequestTimeout,
		"llm.timeout":                 c.LLM.Timeout,
		"orchestrator.agent_timeout":  c.Orchestrator.AgentTimeout,
		"orchestrator.record_timeout": c.Orchestrator.RecordTimeout,
	} {
		if _, err := ParseDuration(value, 0); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	if c.Orchestrator.MaxAgents < 1 {
		return fmt.Errorf("orchestrator.max_agents must be at least 1, got %d", c.Orchestrator.MaxAgents)
	}
	switch c.Events.Type {
	case "", "none", "log", "kafka", "amqp":
	default:
		return fmt.Errorf("unknown events.type %q (want none, log, kafka or amqp)", c.Events.Type)
	}
	return nil
}

// ParseDuration parses s, returning def for an empty string.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
