package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/safehttp"
)

// WebhookStage posts a summary of each finished run to an external endpoint.
type WebhookStage struct {
	name    string
	url     string
	retries int
	headers map[string]string
	client  *http.Client
}

// WebhookStageConfig configures a webhook stage.
type WebhookStageConfig struct {
	Name    string
	URL     string
	Timeout time.Duration
	Retries int
	Headers map[string]string

	// AllowPrivate permits loopback and private-network targets.
	AllowPrivate bool
}

// WebhookPayload is the JSON body sent to webhooks.
type WebhookPayload struct {
	ConversationID string                  `json:"conversation_id"`
	MessageID      string                  `json:"message_id"`
	AgentID        domain.AgentID          `json:"agent_id"`
	Response       string                  `json:"response"`
	Category       string                  `json:"category,omitempty"`
	Language       string                  `json:"language,omitempty"`
	Sentiment      *domain.SentimentResult `json:"sentiment,omitempty"`
	Actions        []domain.AgentAction    `json:"actions"`
	TokenUsage     domain.TokenUsage       `json:"token_usage"`
}

// NewWebhookStage creates a new webhook stage.
func NewWebhookStage(cfg WebhookStageConfig) *WebhookStage {
	var base http.RoundTripper = safehttp.NewTransport()
	if cfg.AllowPrivate {
		base = http.DefaultTransport
	}
	return &WebhookStage{
		name:    cfg.Name,
		url:     cfg.URL,
		retries: cfg.Retries,
		headers: cfg.Headers,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
	}
}

// Name returns the stage identifier.
func (s *WebhookStage) Name() string {
	return s.name
}

// Process delivers the payload, retrying failed attempts.
func (s *WebhookStage) Process(ctx context.Context, state *ports.RunState) error {
	body, err := json.Marshal(payloadFor(state))
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	var lastErr error
	attempts := s.retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		lastErr = s.doRequest(ctx, body)
		if lastErr == nil {
			return nil
		}
		// Don't retry on context cancellation
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("webhook %s failed after %d attempt(s): %w", s.name, attempts, lastErr)
}

func (s *WebhookStage) doRequest(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook returned status %d: %s", resp.StatusCode, string(respBody))
	}
	// Drain so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadFor(state *ports.RunState) WebhookPayload {
	p := WebhookPayload{Actions: []domain.AgentAction{}}
	if state.Input != nil {
		p.ConversationID = state.Input.ConversationID
		p.MessageID = state.Input.MessageID
	}
	if r := state.Result; r != nil {
		p.AgentID = r.AgentID
		p.Response = r.Response
		p.Category = r.Category
		p.Language = r.Language
		p.Sentiment = r.Sentiment
		p.TokenUsage = r.TokenUsage
		if r.Actions != nil {
			p.Actions = r.Actions
		}
	}
	return p
}

// Ensure WebhookStage implements the interface.
var _ ports.Stage = (*WebhookStage)(nil)
