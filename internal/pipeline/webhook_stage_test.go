package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

func TestWebhookStage_PostsPayload(t *testing.T) {
	var got WebhookPayload
	var token string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get("X-Token")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	stage := NewWebhookStage(WebhookStageConfig{
		Name:    "crm",
		URL:     server.URL,
		Timeout: time.Second,
		Headers: map[string]string{"X-Token": "secret"},

		AllowPrivate: true,
	})

	state := &ports.RunState{
		Input: &domain.AgentInput{ConversationID: "conv-1", MessageID: "msg-1"},
		Result: &domain.OrchestratorResult{
			AgentID:    domain.AgentTicketing,
			Response:   "A ticket was opened.",
			Category:   "billing",
			Actions:    []domain.AgentAction{{Type: domain.ActionCreateTicket}},
			TokenUsage: domain.TokenUsage{Input: 120, Output: 40},
		},
	}
	if err := stage.Process(context.Background(), state); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if token != "secret" {
		t.Errorf("X-Token = %q", token)
	}
	if got.ConversationID != "conv-1" || got.MessageID != "msg-1" || got.AgentID != domain.AgentTicketing {
		t.Errorf("payload ids = %+v", got)
	}
	if got.Category != "billing" || len(got.Actions) != 1 || got.TokenUsage.Input != 120 {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookStage_Retries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	stage := NewWebhookStage(WebhookStageConfig{Name: "crm", URL: server.URL, Timeout: time.Second, Retries: 2, AllowPrivate: true})
	if err := stage.Process(context.Background(), newState()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("attempts = %d, want 3", attempts.Load())
	}
}

func TestWebhookStage_GivesUp(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	stage := NewWebhookStage(WebhookStageConfig{Name: "crm", URL: server.URL, Timeout: time.Second, Retries: 1, AllowPrivate: true})
	err := stage.Process(context.Background(), newState())
	if err == nil || !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("Process error = %v, want status 502", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestWebhookStage_RejectsPrivateTargetByDefault(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
	}))
	defer server.Close()

	stage := NewWebhookStage(WebhookStageConfig{Name: "crm", URL: server.URL, Timeout: time.Second})
	err := stage.Process(context.Background(), newState())
	if err == nil || !strings.Contains(err.Error(), "private address denied") {
		t.Fatalf("Process error = %v, want private address denied", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("server saw %d requests", attempts.Load())
	}
}

func TestWebhookStagesFromConfig(t *testing.T) {
	stages, err := WebhookStagesFromConfig([]config.WebhookConfig{
		{Name: "crm", URL: "http://crm.internal/hook"},
		{URL: "http://audit.internal/hook", Timeout: "2s"},
	})
	if err != nil {
		t.Fatalf("WebhookStagesFromConfig failed: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("got %d stages", len(stages))
	}
	if stages[0].Stage.Name() != "crm" || stages[1].Stage.Name() != "webhook-2" {
		t.Errorf("names = %s, %s", stages[0].Stage.Name(), stages[1].Stage.Name())
	}
	if stages[0].Order >= stages[1].Order || stages[0].Order < WebhookOrder {
		t.Errorf("orders = %d, %d", stages[0].Order, stages[1].Order)
	}

	bad := []struct {
		name string
		cfgs []config.WebhookConfig
	}{
		{"missing url", []config.WebhookConfig{{Name: "crm"}}},
		{"bad timeout", []config.WebhookConfig{{URL: "http://x", Timeout: "soon"}}},
		{"negative retries", []config.WebhookConfig{{URL: "http://x", Retries: -1}}},
		{"duplicate", []config.WebhookConfig{{Name: "a", URL: "http://x"}, {Name: "a", URL: "http://y"}}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := WebhookStagesFromConfig(tt.cfgs); err == nil {
				t.Error("expected error")
			}
		})
	}
}
