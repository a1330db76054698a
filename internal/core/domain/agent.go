// Package domain holds the core types shared by the orchestration pipeline,
// the agents, and the storage adapters.
package domain

import (
	"time"
	"unicode/utf8"
)

// AgentID names an agent capability. IDs are stable across the registry,
// classifier output, usage buckets, and agent logs.
type AgentID string

const (
	AgentTranslation       AgentID = "team-1"
	AgentSentiment         AgentID = "team-2"
	AgentFAQ               AgentID = "team-3"
	AgentErrorAnalysis     AgentID = "team-4"
	AgentHardwareDiagnosis AgentID = "team-5"
	AgentPolicyCompliance  AgentID = "team-6"
	AgentTicketing         AgentID = "team-7"
	AgentReporting         AgentID = "team-8"
	AgentUXFeedback        AgentID = "team-9"
	AgentQAReview          AgentID = "team-10"
)

// DefaultAgentID is used when the classifier cannot nominate anyone and when
// every specialist failed and the fallback reply is returned.
const DefaultAgentID = AgentFAQ

// AggregateAgentID is the usage-bucket key for totals across all agents.
const AggregateAgentID AgentID = "_all"

var allAgentIDs = []AgentID{
	AgentTranslation,
	AgentSentiment,
	AgentFAQ,
	AgentErrorAnalysis,
	AgentHardwareDiagnosis,
	AgentPolicyCompliance,
	AgentTicketing,
	AgentReporting,
	AgentUXFeedback,
	AgentQAReview,
}

var agentNames = map[AgentID]string{
	AgentTranslation:       "Translation",
	AgentSentiment:         "Sentiment Analysis",
	AgentFAQ:               "FAQ",
	AgentErrorAnalysis:     "Error Analysis",
	AgentHardwareDiagnosis: "Hardware Diagnosis",
	AgentPolicyCompliance:  "Policy Compliance",
	AgentTicketing:         "Ticketing",
	AgentReporting:         "Reporting",
	AgentUXFeedback:        "UX Feedback",
	AgentQAReview:          "QA Review",
}

// AllAgentIDs returns every known agent id in registration order.
func AllAgentIDs() []AgentID {
	out := make([]AgentID, len(allAgentIDs))
	copy(out, allAgentIDs)
	return out
}

// Valid reports whether id is one of the known agent ids.
func (id AgentID) Valid() bool {
	_, ok := agentNames[id]
	return ok
}

// DisplayName returns the human-readable agent name.
func (id AgentID) DisplayName() string {
	if name, ok := agentNames[id]; ok {
		return name
	}
	return string(id)
}

// IsSpecialist reports whether the agent may be selected by the classifier.
// Translation, sentiment and QA review are structural stages.
func (id AgentID) IsSpecialist() bool {
	switch id {
	case AgentTranslation, AgentSentiment, AgentQAReview:
		return false
	}
	return id.Valid()
}

// HistoryMessage is one prior turn of the conversation.
type HistoryMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	AgentID   AgentID   `json:"agent_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewContext is handed to the QA reviewer.
type ReviewContext struct {
	OriginalContent string  `json:"original_content"`
	OriginalAgentID AgentID `json:"original_agent_id"`
}

// ReportContext is handed to the reporting agent when usage figures are available.
type ReportContext struct {
	Date  string        `json:"date"`
	Usage []UsageBucket `json:"usage,omitempty"`
}

// AgentContext carries per-run context for specific agents.
// Extra is kept for values that have no typed home yet.
type AgentContext struct {
	Review *ReviewContext `json:"review,omitempty"`
	Report *ReportContext `json:"report,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

// AgentInput is the common input contract for every agent.
// It is built once per run and only enriched between sequential stages;
// concurrent specialists share it read-only.
type AgentInput struct {
	ConversationID    string           `json:"conversation_id"`
	MessageID         string           `json:"message_id"`
	OriginalMessage   string           `json:"original_message"`
	TranslatedMessage string           `json:"translated_message,omitempty"`
	DetectedLanguage  string           `json:"detected_language,omitempty"`
	Sentiment         *SentimentResult `json:"sentiment,omitempty"`
	History           []HistoryMessage `json:"history,omitempty"`
	UserID            string           `json:"user_id"`
	CustomerID        string           `json:"customer_id,omitempty"`
	Context           AgentContext     `json:"context"`
}

// Message returns the text agents should work on: the translation when
// present, otherwise the original message.
func (in *AgentInput) Message() string {
	if in.TranslatedMessage != "" {
		return in.TranslatedMessage
	}
	return in.OriginalMessage
}

// ActionType enumerates the side effects an agent may request.
type ActionType string

const (
	ActionCreateTicket       ActionType = "create_ticket"
	ActionUpdateTicket       ActionType = "update_ticket"
	ActionEscalate           ActionType = "escalate"
	ActionUpdateConversation ActionType = "update_conversation"
	ActionNotify             ActionType = "notify"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreateTicket, ActionUpdateTicket, ActionEscalate, ActionUpdateConversation, ActionNotify:
		return true
	}
	return false
}

// AgentAction is a declarative side-effect request emitted by an agent.
type AgentAction struct {
	Type    ActionType     `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// AgentOutput is produced once per agent invocation and never mutated afterwards.
type AgentOutput struct {
	AgentID     AgentID        `json:"agent_id"`
	Content     string         `json:"content"`
	Confidence  float64        `json:"confidence"`
	Actions     []AgentAction  `json:"actions,omitempty"`
	TokenInput  int            `json:"token_input"`
	TokenOutput int            `json:"token_output"`
	DurationMs  int64          `json:"duration_ms"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Sentiment is the detected customer mood.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
	SentimentAngry    Sentiment = "angry"
)

// Urgency is how quickly the message needs attention.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Priority is the ticket/conversation priority scale.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether s is a known sentiment.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNeutral, SentimentNegative, SentimentAngry:
		return true
	}
	return false
}

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Priority maps an urgency onto the priority scale.
func (u Urgency) Priority() Priority {
	switch u {
	case UrgencyLow:
		return PriorityLow
	case UrgencyHigh:
		return PriorityHigh
	case UrgencyCritical:
		return PriorityUrgent
	default:
		return PriorityMedium
	}
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// SentimentResult is the parsed output of the sentiment stage.
type SentimentResult struct {
	Sentiment  Sentiment `json:"sentiment"`
	Urgency    Urgency   `json:"urgency"`
	Priority   Priority  `json:"priority"`
	Confidence float64   `json:"confidence"`
	Keywords   []string  `json:"keywords"`
}

// IsSevere reports whether the message must be routed to the ticketing agent.
func (s *SentimentResult) IsSevere() bool {
	if s == nil {
		return false
	}
	return s.Sentiment == SentimentAngry || s.Urgency == UrgencyCritical
}

// ClassificationResult is the classifier's routing decision.
type ClassificationResult struct {
	Category   string    `json:"category"`
	Agents     []AgentID `json:"agents"`
	Confidence float64   `json:"confidence"`
	Reasoning  string    `json:"reasoning,omitempty"`
}

// MaxLogExcerpt bounds AgentLogEntry.Output in runes.
const MaxLogExcerpt = 200

// AgentLogEntry records one stage attempt, successful or not.
type AgentLogEntry struct {
	ID             string    `json:"id,omitempty" db:"id"`
	ConversationID string    `json:"conversation_id,omitempty" db:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty" db:"message_id"`
	AgentID        AgentID   `json:"agent_id" db:"agent_id"`
	AgentName      string    `json:"agent_name" db:"agent_name"`
	Action         string    `json:"action" db:"action"`
	Confidence     float64   `json:"confidence" db:"confidence"`
	DurationMs     int64     `json:"duration_ms" db:"duration_ms"`
	TokenInput     int       `json:"token_input" db:"token_input"`
	TokenOutput    int       `json:"token_output" db:"token_output"`
	Output         string    `json:"output,omitempty" db:"output"`
	Error          string    `json:"error,omitempty" db:"error_message"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// Excerpt truncates s to MaxLogExcerpt runes.
func Excerpt(s string) string {
	if utf8.RuneCountInString(s) <= MaxLogExcerpt {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxLogExcerpt])
}

// TokenUsage is the summed token usage of a run.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// ActionResult is the outcome of executing one AgentAction.
type ActionResult struct {
	Type    ActionType     `json:"type"`
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// OrchestratorResult is returned to the caller for every run.
type OrchestratorResult struct {
	Response      string           `json:"response"`
	AgentID       AgentID          `json:"agent_id"`
	AgentName     string           `json:"agent_name"`
	Sentiment     *SentimentResult `json:"sentiment,omitempty"`
	Language      string           `json:"language,omitempty"`
	Category      string           `json:"category,omitempty"`
	Actions       []AgentAction    `json:"actions"`
	ActionResults []ActionResult   `json:"action_results,omitempty"`
	TokenUsage    TokenUsage       `json:"token_usage"`
	AgentLogs     []AgentLogEntry  `json:"agent_logs"`
}
