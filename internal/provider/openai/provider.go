// Package openai implements ports.Gateway on the OpenAI Chat Completions API
// and compatible servers.
package openai

import (
	"context"
	"net/http"
	"strings"

	openaiapi "github.com/infohyun/aramcrm-sub000/internal/api/openai"
	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

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

// Provider implements ports.Gateway using the OpenAI client.
type Provider struct {
	client     *openaiapi.Client
	baseURL    string
	model      string
	httpClient *http.Client
}

// New creates a new OpenAI provider.
func New(apiKey string, opts ...ProviderOption) *Provider {
	p := &Provider{}

	for _, opt := range opts {
		opt(p)
	}

	var clientOpts []openaiapi.ClientOption
	if p.baseURL != "" {
		clientOpts = append(clientOpts, openaiapi.WithBaseURL(p.baseURL))
	}
	if p.httpClient != nil {
		clientOpts = append(clientOpts, openaiapi.WithHTTPClient(p.httpClient))
	}

	p.client = openaiapi.NewClient(apiKey, clientOpts...)
	return p
}

func (p *Provider) Name() string {
	return ProviderType
}

// Complete sends one system+user exchange with prior history. Token counts
// are zero when the backend omits usage.
func (p *Provider) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	messages := make([]openaiapi.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openaiapi.ChatCompletionMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.History {
		switch m.Role {
		case "user", "assistant":
			messages = append(messages, openaiapi.ChatCompletionMessage{Role: m.Role, Content: m.Content})
		}
	}
	messages = append(messages, openaiapi.ChatCompletionMessage{Role: "user", Content: req.UserMessage})

	resp, err := p.client.CreateChatCompletion(ctx, &openaiapi.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, domain.ErrServer("model returned no choices").
			WithCode(domain.ErrorCodeEmptyCompletion).
			WithSourceAPI(domain.APITypeOpenAI)
	}

	out := &domain.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Model:   resp.Model,
	}
	if resp.Usage != nil {
		out.TokenInput = resp.Usage.PromptTokens
		out.TokenOutput = resp.Usage.CompletionTokens
	}
	return out, nil
}
