// Package anthropic implements ports.Gateway on the Anthropic Messages API.
package anthropic

import (
	"context"
	"net/http"
	"strings"

	anthropicapi "github.com/infohyun/aramcrm-sub000/internal/api/anthropic"
	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// defaultMaxTokens is sent when neither the request nor the config sets one;
// the Messages API requires the field.
const defaultMaxTokens = 1024

// ProviderOption configures the provider.
type ProviderOption func(*Provider)

// WithBaseURL sets a custom base URL for the API.
func WithBaseURL(baseURL string) ProviderOption {
	return func(p *Provider) {
		p.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = httpClient
	}
}

// WithModel sets the model used when a request does not name one.
func WithModel(model string) ProviderOption {
	return func(p *Provider) {
		p.model = model
	}
}

// Provider implements ports.Gateway using the Anthropic client.
type Provider struct {
	client     *anthropicapi.Client
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a new Anthropic provider.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{}

	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []anthropicapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, anthropicapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, anthropicapi.WithHTTPClient(p.httpClient))
	}

	p.client = anthropicapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string {
	return ProviderType
}

// Complete sends one system+user exchange with prior history.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	resp, err := p.client.CreateMessage(ctx, p.toAPIRequest(req))
	if err != nil {
		return nil, err
	}

	content := resp.Text()
	if strings.TrimSpace(content) == "" {
		return nil, domain.ErrServer("model returned no text content").
			WithCode(domain.ErrorCodeEmptyCompletion).
			WithSourceAPI(domain.APITypeAnthropic)
	}

	return &domain.CompletionResponse{
		Content:     content,
		TokenInput:  resp.Usage.InputTokens,
		TokenOutput: resp.Usage.OutputTokens,
		Model:       resp.Model,
	}, nil
}

func (p *Provider) toAPIRequest(req *domain.CompletionRequest) *anthropicapi.MessagesRequest {
	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	return &anthropicapi.MessagesRequest{
		Model:       model,
		System:      req.SystemPrompt,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		Messages:    toMessages(req.History, req.UserMessage),
	}
}

// toMessages keeps user and assistant turns, merges consecutive turns of the
// same role, and drops leading assistant turns so the list starts with a
// user message as the API requires.
func toMessages(history []domain.ChatMessage, user string) []anthropicapi.Message {
	var out []anthropicapi.Message
	add := func(role, content string) {
		if content == "" {
			return
		}
		if len(out) == 0 && role != "user" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			return
		}
		out = append(out, anthropicapi.Message{Role: role, Content: content})
	}

	for _, m := range history {
		switch m.Role {
		case "user", "assistant":
			add(m.Role, m.Content)
		}
	}
	add("user", user)
	return out
}
