package provider

import (
	"context"
	"strings"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pkg/config"
	"github.com/infohyun/aramcrm-sub000/internal/tokens"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultsGateway fills model, max tokens and temperature from config when a
// request leaves them unset.
type DefaultsGateway struct {
	inner       ports.Gateway
	model       string
	maxTokens   int
	temperature float64
}

// NewDefaultsGateway creates a new DefaultsGateway.
func NewDefaultsGateway(inner ports.Gateway, cfg config.LLMConfig) *DefaultsGateway {
	return &DefaultsGateway{
		inner:       inner,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (g *DefaultsGateway) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	// Clone request to avoid side effects
	newReq := *req
	if newReq.Model == "" {
		newReq.Model = g.model
	}
	if newReq.MaxTokens <= 0 {
		newReq.MaxTokens = g.maxTokens
	}
	if newReq.Temperature == nil {
		t := g.temperature
		newReq.Temperature = &t
	}
	return g.inner.Complete(ctx, &newReq)
}

// UsageFallbackGateway counts tokens locally when the backend reports none.
type UsageFallbackGateway struct {
	inner   ports.Gateway
	counter *tokens.Registry
	model   string
}

// NewUsageFallbackGateway creates a new UsageFallbackGateway. model is used
// for counting when neither request nor response names one.
func NewUsageFallbackGateway(inner ports.Gateway, counter *tokens.Registry, model string) *UsageFallbackGateway {
	return &UsageFallbackGateway{inner: inner, counter: counter, model: model}
}

func (g *UsageFallbackGateway) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	resp, err := g.inner.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	if model == "" {
		model = g.model
	}

	if resp.TokenInput == 0 {
		resp.TokenInput = g.counter.Count(model, promptText(req))
	}
	if resp.TokenOutput == 0 && resp.Content != "" {
		resp.TokenOutput = g.counter.Count(model, resp.Content)
	}
	return resp, nil
}

func promptText(req *domain.CompletionRequest) string {
	var b strings.Builder
	b.WriteString(req.SystemPrompt)
	for _, m := range req.History {
		b.WriteString("\n")
		b.WriteString(m.Content)
	}
	b.WriteString("\n")
	b.WriteString(req.UserMessage)
	return b.String()
}

// TracingGateway wraps every completion in a client span.
type TracingGateway struct {
	inner    ports.Gateway
	provider string
	tracer   trace.Tracer
}

// NewTracingGateway creates a new TracingGateway.
func NewTracingGateway(inner ports.Gateway, provider string) *TracingGateway {
	return &TracingGateway{
		inner:    inner,
		provider: provider,
		tracer:   otel.Tracer("github.com/infohyun/aramcrm-sub000/internal/provider"),
	}
}

func (g *TracingGateway) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	ctx, span := g.tracer.Start(ctx, "llm.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.provider", g.provider),
			attribute.String("llm.model", req.Model),
			attribute.String("agent.id", string(req.AgentID)),
		))
	defer span.End()

	resp, err := g.inner.Complete(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("llm.tokens.input", resp.TokenInput),
		attribute.Int("llm.tokens.output", resp.TokenOutput),
	)
	return resp, nil
}
