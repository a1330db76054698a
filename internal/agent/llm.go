package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// reply is what a parser extracts from the model text.
type reply struct {
	Content    string
	Confidence float64
	Actions    []domain.AgentAction
}

// prepareFunc builds the user prompt. meta is copied into the output metadata
// and handed to the parser.
type prepareFunc func(ctx context.Context, in *domain.AgentInput) (prompt string, meta map[string]any, err error)

type parseFunc func(content string, in *domain.AgentInput, meta map[string]any) reply

// llmAgent is the single implementation behind every built-in agent: one
// gateway call with an agent-specific prompt and parser.
type llmAgent struct {
	id          domain.AgentID
	system      string
	gateway     ports.Gateway
	prepare     prepareFunc
	parse       parseFunc
	withHistory bool
	maxTokens   int
	temperature *float64
	logger      *slog.Logger
}

func (a *llmAgent) ID() domain.AgentID { return a.id }

func (a *llmAgent) Name() string { return a.id.DisplayName() }

// Run calls the gateway once. Gateway errors are returned unchanged so the
// caller can classify them.
func (a *llmAgent) Run(ctx context.Context, in *domain.AgentInput) (*domain.AgentOutput, error) {
	start := time.Now()

	prompt, meta, err := a.prepare(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: build prompt: %w", a.id, err)
	}

	req := &domain.CompletionRequest{
		AgentID:      a.id,
		SystemPrompt: a.system,
		UserMessage:  prompt,
		MaxTokens:    a.maxTokens,
		Temperature:  a.temperature,
	}
	if a.withHistory {
		req.History = chatHistory(in.History)
	}

	resp, err := a.gateway.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	r := a.parse(resp.Content, in, meta)
	out := &domain.AgentOutput{
		AgentID:     a.id,
		Content:     r.Content,
		Confidence:  clamp(r.Confidence),
		Actions:     r.Actions,
		TokenInput:  resp.TokenInput,
		TokenOutput: resp.TokenOutput,
		DurationMs:  time.Since(start).Milliseconds(),
		Metadata:    meta,
	}

	a.logger.Debug("agent completed",
		slog.String("agent_id", string(a.id)),
		slog.Float64("confidence", out.Confidence),
		slog.Int("actions", len(out.Actions)),
		slog.Int64("duration_ms", out.DurationMs))

	return out, nil
}

func chatHistory(history []domain.HistoryMessage) []domain.ChatMessage {
	if len(history) == 0 {
		return nil
	}
	out := make([]domain.ChatMessage, 0, len(history))
	for _, m := range history {
		out = append(out, domain.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

func clamp(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// rawReply passes the model text through unchanged.
func rawReply(confidence float64) parseFunc {
	return func(content string, _ *domain.AgentInput, _ map[string]any) reply {
		return reply{Content: strings.TrimSpace(content), Confidence: confidence}
	}
}

// specialistJSON is the structured reply every specialist is asked for.
type specialistJSON struct {
	Response   string               `json:"response"`
	Confidence *float64             `json:"confidence"`
	Actions    []domain.AgentAction `json:"actions"`
}

// parseSpecialist decodes specialistJSON and falls back to the raw text with
// defaultConfidence when the model did not answer in JSON.
func parseSpecialist(defaultConfidence float64, logger *slog.Logger) parseFunc {
	return func(content string, _ *domain.AgentInput, _ map[string]any) reply {
		v, ok := DecodeObject[specialistJSON](content)
		if !ok || strings.TrimSpace(v.Response) == "" {
			return reply{Content: strings.TrimSpace(content), Confidence: defaultConfidence}
		}
		r := reply{Content: v.Response, Confidence: defaultConfidence}
		if v.Confidence != nil {
			r.Confidence = *v.Confidence
		}
		r.Actions = validActions(v.Actions, logger)
		return r
	}
}

func validActions(actions []domain.AgentAction, logger *slog.Logger) []domain.AgentAction {
	var out []domain.AgentAction
	for _, a := range actions {
		if !a.Type.Valid() {
			logger.Warn("dropping unknown action type", slog.String("type", string(a.Type)))
			continue
		}
		out = append(out, a)
	}
	return out
}

// messageContext renders the fields every specialist prompt shares.
func messageContext(in *domain.AgentInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Customer message:\n%s\n", in.Message())
	if in.TranslatedMessage != "" && in.TranslatedMessage != in.OriginalMessage {
		fmt.Fprintf(&b, "\nOriginal message:\n%s\n", in.OriginalMessage)
	}
	if in.DetectedLanguage != "" {
		fmt.Fprintf(&b, "\nCustomer language: %s (reply in this language)\n", in.DetectedLanguage)
	}
	if s := in.Sentiment; s != nil {
		fmt.Fprintf(&b, "Sentiment: %s, urgency: %s, priority: %s\n", s.Sentiment, s.Urgency, s.Priority)
		if len(s.Keywords) > 0 {
			fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(s.Keywords, ", "))
		}
	}
	if in.CustomerID != "" {
		fmt.Fprintf(&b, "Customer id: %s\n", in.CustomerID)
	}
	return b.String()
}

func plainPrompt(ctx context.Context, in *domain.AgentInput) (string, map[string]any, error) {
	return messageContext(in), nil, nil
}

const specialistFormat = `
Answer with a single JSON object and nothing else:
{"response": "<reply to the customer>", "confidence": <0..1, how well you can resolve this>, "actions": [{"type": "<create_ticket|update_ticket|escalate|update_conversation|notify>", "payload": {...}}]}
Only include actions when a side effect is really needed.`
