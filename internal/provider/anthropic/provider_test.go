package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	anthropicapi "github.com/infohyun/aramcrm-sub000/internal/api/anthropic"
	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
)

func TestComplete(t *testing.T) {
	var got anthropicapi.MessagesRequest
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("expected x-api-key header to be 'test-key', got %q", r.Header.Get("x-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{
  "id": "msg_1",
  "type": "message",
  "role": "assistant",
  "model": "claude-test",
  "content": [{"type": "text", "text": "{\"translatedText\": \"hello\"}"}],
  "stop_reason": "end_turn",
  "usage": {"input_tokens": 42, "output_tokens": 7}
}`)
	}))
	defer ts.Close()

	p := New("test-key", WithBaseURL(ts.URL), WithModel("claude-test"))

	resp, err := p.Complete(context.Background(), &domain.CompletionRequest{
		SystemPrompt: "translate",
		UserMessage:  "안녕하세요",
		History: []domain.ChatMessage{
			{Role: "assistant", Content: "greeting"},
			{Role: "user", Content: "first"},
			{Role: "user", Content: "second"},
			{Role: "assistant", Content: "answer"},
		},
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}

	if resp.Content != `{"translatedText": "hello"}` {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.TokenInput != 42 || resp.TokenOutput != 7 {
		t.Errorf("tokens = %d/%d, want 42/7", resp.TokenInput, resp.TokenOutput)
	}

	if got.Model != "claude-test" || got.System != "translate" || got.MaxTokens != defaultMaxTokens {
		t.Errorf("unexpected request: %+v", got)
	}
	wantRoles := []string{"user", "assistant", "user"}
	if len(got.Messages) != len(wantRoles) {
		t.Fatalf("messages = %+v", got.Messages)
	}
	for i, role := range wantRoles {
		if got.Messages[i].Role != role {
			t.Errorf("message %d role = %s, want %s", i, got.Messages[i].Role, role)
		}
	}
	if got.Messages[0].Content != "first\n\nsecond" {
		t.Errorf("merged content = %q", got.Messages[0].Content)
	}
	if got.Messages[2].Content != "안녕하세요" {
		t.Errorf("last message = %q", got.Messages[2].Content)
	}
}

func TestComplete_EmptyContent(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"id":"m","type":"message","role":"assistant","model":"c","content":[],"usage":{"input_tokens":1,"output_tokens":0}}`)
	}))
	defer ts.Close()

	_, err := New("k", WithBaseURL(ts.URL)).Complete(context.Background(), &domain.CompletionRequest{UserMessage: "hi"})
	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != domain.ErrorCodeEmptyCompletion {
		t.Fatalf("error = %v, want empty completion", err)
	}
}

func TestValidateConfig(t *testing.T) {
	if err := ValidateConfig(config.LLMConfig{}); err == nil {
		t.Error("expected error without api key")
	}
	if err := ValidateConfig(config.LLMConfig{APIKey: "k"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
