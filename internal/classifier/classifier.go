// Package classifier decides which specialists handle a message. The model
// nominates a category and agents; ApplyRules then enforces enablement, the
// escalation override and the agent cap.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/infohyun/aramcrm-sub000/internal/agent"
	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// StageID tags classifier gateway calls and agent log entries. It is not a
// registered agent.
const StageID domain.AgentID = "classifier"

// StageName is the display name used in agent logs.
const StageName = "Classifier"

// DefaultCategory is used when the model gives no usable answer.
const DefaultCategory = "general"

// DefaultMaxAgents bounds the specialist list when no limit is configured.
const DefaultMaxAgents = 3

var deterministic = 0.0

// Classifier asks the language model to route a message.
type Classifier struct {
	gateway ports.Gateway
	logger  *slog.Logger
}

// New returns a classifier that calls gateway.
func New(gateway ports.Gateway, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{gateway: gateway, logger: logger}
}

type nomination struct {
	Category   string   `json:"category"`
	Agents     []string `json:"agents"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// Classify routes in. The returned result is never nil: a failed call or an
// unparseable reply yields the default general/FAQ routing, and the error
// reports the failed call for logging. Token usage is returned even when the
// reply could not be parsed.
func (c *Classifier) Classify(ctx context.Context, in *domain.AgentInput, enabled map[domain.AgentID]bool, maxAgents int) (*domain.ClassificationResult, domain.TokenUsage, error) {
	var usage domain.TokenUsage
	result := &domain.ClassificationResult{
		Category: DefaultCategory,
		Agents:   []domain.AgentID{domain.DefaultAgentID},
	}

	resp, err := c.gateway.Complete(ctx, &domain.CompletionRequest{
		AgentID:      StageID,
		SystemPrompt: systemPrompt(enabled),
		UserMessage:  userPrompt(in),
		Temperature:  &deterministic,
	})
	if err != nil {
		result.Agents = ApplyRules(result.Agents, in.Sentiment, enabled, maxAgents)
		return result, usage, fmt.Errorf("classify: %w", err)
	}
	usage = domain.TokenUsage{Input: resp.TokenInput, Output: resp.TokenOutput}

	if n, ok := agent.DecodeObject[nomination](resp.Content); ok && len(n.Agents) > 0 {
		if strings.TrimSpace(n.Category) != "" {
			result.Category = strings.TrimSpace(n.Category)
		}
		result.Agents = make([]domain.AgentID, 0, len(n.Agents))
		for _, a := range n.Agents {
			result.Agents = append(result.Agents, domain.AgentID(strings.TrimSpace(a)))
		}
		result.Confidence = n.Confidence
		result.Reasoning = n.Reasoning
	} else {
		c.logger.Warn("classifier reply not usable, routing to default agent",
			slog.String("conversation_id", in.ConversationID))
	}

	result.Agents = ApplyRules(result.Agents, in.Sentiment, enabled, maxAgents)
	return result, usage, nil
}

// ApplyRules turns the model's nominations into the final specialist list:
// unknown, structural and disabled ids are dropped and duplicates removed;
// an empty list falls back to the default agent; severe sentiment adds the
// ticketing agent; the list is capped at limit. A ticketing agent that would
// fall past the cap, nominated or not, takes the last slot instead.
//
// A nil or partial enabled map treats missing ids as enabled.
func ApplyRules(proposed []domain.AgentID, sentiment *domain.SentimentResult, enabled map[domain.AgentID]bool, limit int) []domain.AgentID {
	if limit < 1 {
		limit = DefaultMaxAgents
	}

	seen := make(map[domain.AgentID]bool, len(proposed))
	agents := make([]domain.AgentID, 0, len(proposed)+1)
	for _, id := range proposed {
		if !id.IsSpecialist() || !isEnabled(enabled, id) || seen[id] {
			continue
		}
		seen[id] = true
		agents = append(agents, id)
	}

	if len(agents) == 0 && isEnabled(enabled, domain.DefaultAgentID) {
		agents = append(agents, domain.DefaultAgentID)
		seen[domain.DefaultAgentID] = true
	}

	if sentiment.IsSevere() && isEnabled(enabled, domain.AgentTicketing) {
		if i := slices.Index(agents, domain.AgentTicketing); i < 0 || i >= limit {
			if i >= 0 {
				agents = slices.Delete(agents, i, i+1)
			}
			if len(agents) >= limit {
				agents = agents[:limit-1]
			}
			agents = append(agents, domain.AgentTicketing)
		}
	}

	if len(agents) > limit {
		agents = agents[:limit]
	}
	return agents
}

func isEnabled(enabled map[domain.AgentID]bool, id domain.AgentID) bool {
	on, ok := enabled[id]
	return !ok || on
}

var specialistRoles = map[domain.AgentID]string{
	domain.AgentFAQ:               "general questions, how-to and account help",
	domain.AgentErrorAnalysis:     "software errors, error codes, failed operations",
	domain.AgentHardwareDiagnosis: "device faults, hardware symptoms, repairs",
	domain.AgentPolicyCompliance:  "refunds, warranty, contracts, privacy",
	domain.AgentTicketing:         "complaints or issues that need staff follow-up",
	domain.AgentReporting:         "usage reports and statistics for staff",
	domain.AgentUXFeedback:        "product and usability feedback",
}

func systemPrompt(enabled map[domain.AgentID]bool) string {
	var b strings.Builder
	b.WriteString("You route customer support messages to specialist agents.\nAvailable agents:\n")
	for _, id := range domain.AllAgentIDs() {
		role, ok := specialistRoles[id]
		if !ok || !isEnabled(enabled, id) {
			continue
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", id, id.DisplayName(), role)
	}
	fmt.Fprintf(&b, `Pick at most %d agents, most relevant first.
Answer with a single JSON object and nothing else:
{"category": "<short category>", "agents": ["team-N", ...], "confidence": <0..1>, "reasoning": "<one sentence>"}`, DefaultMaxAgents)
	return b.String()
}

func userPrompt(in *domain.AgentInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Message:\n%s\n", in.Message())
	if s := in.Sentiment; s != nil {
		fmt.Fprintf(&b, "\nSentiment: %s, urgency: %s\n", s.Sentiment, s.Urgency)
	}
	return b.String()
}
