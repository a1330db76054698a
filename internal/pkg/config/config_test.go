package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 8080 {
			t.Errorf("port = %v, want 8080", cfg.Server.Port)
		}
		if cfg.Orchestrator.MaxAgents != 3 {
			t.Errorf("max_agents = %v, want 3", cfg.Orchestrator.MaxAgents)
		}
		if cfg.Orchestrator.DefaultLocale != "ko" {
			t.Errorf("default_locale = %q, want ko", cfg.Orchestrator.DefaultLocale)
		}
		if !cfg.Orchestrator.TranslationEnabled || !cfg.Orchestrator.SentimentEnabled || !cfg.Orchestrator.QAEnabled {
			t.Errorf("optional stages should default to enabled: %+v", cfg.Orchestrator)
		}
		if cfg.Pricing.InputPerMillion != 3.0 || cfg.Pricing.OutputPerMillion != 15.0 {
			t.Errorf("pricing = %+v, want 3/15", cfg.Pricing)
		}
	})

	t.Run("file values win over defaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9090
orchestrator:
  qa_enabled: false
  max_agents: 2
  agent_timeout: 5s
events:
  type: kafka
  kafka:
    brokers: ["localhost:9092"]
`)
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 9090 {
			t.Errorf("port = %v, want 9090", cfg.Server.Port)
		}
		if cfg.Orchestrator.QAEnabled {
			t.Error("qa_enabled should be false")
		}
		if cfg.Orchestrator.MaxAgents != 2 {
			t.Errorf("max_agents = %v, want 2", cfg.Orchestrator.MaxAgents)
		}
		if cfg.Events.Kafka.Topic != "orchestrator-events" {
			t.Errorf("kafka topic = %q, want default", cfg.Events.Kafka.Topic)
		}
		if len(cfg.Events.Kafka.Brokers) != 1 || cfg.Events.Kafka.Brokers[0] != "localhost:9092" {
			t.Errorf("kafka brokers = %v", cfg.Events.Kafka.Brokers)
		}
	})

	t.Run("env var override", func(t *testing.T) {
		t.Setenv("ORCH_SERVER__PORT", "9000")
		t.Setenv("ORCH_ORCHESTRATOR__DEFAULT_LOCALE", "en")

		cfg, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}

		if cfg.Server.Port != 9000 {
			t.Errorf("port = %v, want 9000", cfg.Server.Port)
		}
		if cfg.Orchestrator.DefaultLocale != "en" {
			t.Errorf("default_locale = %q, want en", cfg.Orchestrator.DefaultLocale)
		}
	})

	t.Run("api key substitution", func(t *testing.T) {
		t.Setenv("TEST_LLM_KEY", "sk-test")
		path := writeConfig(t, `
llm:
  api_key: "${TEST_LLM_KEY}"
`)
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if cfg.LLM.APIKey != "sk-test" {
			t.Errorf("api_key = %q, want sk-test", cfg.LLM.APIKey)
		}
	})

	t.Run("webhooks", func(t *testing.T) {
		t.Setenv("TEST_HOOK_TOKEN", "secret")
		path := writeConfig(t, `
orchestrator:
  webhooks:
    - name: crm
      url: http://crm.internal/hooks/orchestration
      retries: 2
      headers:
        X-Token: "${TEST_HOOK_TOKEN}"
`)
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile() error = %v", err)
		}
		if len(cfg.Orchestrator.Webhooks) != 1 {
			t.Fatalf("webhooks = %+v, want 1", cfg.Orchestrator.Webhooks)
		}
		wh := cfg.Orchestrator.Webhooks[0]
		if wh.Name != "crm" || wh.Retries != 2 || wh.URL != "http://crm.internal/hooks/orchestration" {
			t.Errorf("webhook = %+v", wh)
		}
		if wh.Headers["X-Token"] != "secret" {
			t.Errorf("headers = %v, want substituted token", wh.Headers)
		}
	})

	t.Run("invalid duration", func(t *testing.T) {
		path := writeConfig(t, `
orchestrator:
  agent_timeout: soon
`)
		_, err := LoadFile(path)
		if err == nil || !strings.Contains(err.Error(), "orchestrator.agent_timeout") {
			t.Fatalf("LoadFile() error = %v, want agent_timeout error", err)
		}
	})

	t.Run("unknown event type", func(t *testing.T) {
		path := writeConfig(t, `
events:
  type: carrier-pigeon
`)
		if _, err := LoadFile(path); err == nil {
			t.Fatal("expected error for unknown events.type")
		}
	})
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("", 7*time.Second)
	if err != nil || d != 7*time.Second {
		t.Errorf("ParseDuration(\"\") = %v, %v; want default", d, err)
	}
	d, err = ParseDuration("250ms", 0)
	if err != nil || d != 250*time.Millisecond {
		t.Errorf("ParseDuration(250ms) = %v, %v", d, err)
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "simple substitution",
			input: "${TEST_VAR}",
			want:  "test-value",
		},
		{
			name:  "substitution in string",
			input: "prefix-${TEST_VAR}-suffix",
			want:  "prefix-test-value-suffix",
		},
		{
			name:  "no substitution",
			input: "plain-string",
			want:  "plain-string",
		},
		{
			name:  "undefined var",
			input: "${UNDEFINED_VAR_FOR_TEST}",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := substituteEnvVars(tt.input); got != tt.want {
				t.Errorf("substituteEnvVars(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
