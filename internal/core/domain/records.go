package domain

import "time"

// UsageBucket accumulates counters per day and agent. AgentID is
// AggregateAgentID for the all-agents bucket.
type UsageBucket struct {
	Date             string  `json:"date" db:"usage_date"`
	AgentID          AgentID `json:"agent_id" db:"agent_id"`
	Calls            int64   `json:"calls" db:"calls"`
	TokenInput       int64   `json:"token_input" db:"token_input"`
	TokenOutput      int64   `json:"token_output" db:"token_output"`
	Messages         int64   `json:"messages" db:"messages"`
	Conversations    int64   `json:"conversations" db:"conversations"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd" db:"estimated_cost_usd"`
}

// UsageDelta is added to a bucket by an upsert.
type UsageDelta struct {
	Calls            int64
	TokenInput       int64
	TokenOutput      int64
	Messages         int64
	Conversations    int64
	EstimatedCostUSD float64
}

// AgentConfig is the persisted enablement flag for an agent.
type AgentConfig struct {
	AgentID   AgentID   `json:"agent_id" db:"agent_id"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FAQEntry is a question/answer pair searched by the FAQ agent.
type FAQEntry struct {
	ID       string `json:"id" db:"id"`
	Question string `json:"question" db:"question"`
	Answer   string `json:"answer" db:"answer"`
	Category string `json:"category,omitempty" db:"category"`
}

// Conversation status values used by the action executor.
const (
	ConversationOpen      = "open"
	ConversationEscalated = "escalated"
	ConversationResolved  = "resolved"
)

// Conversation is the subset of the conversation record the core reads and writes.
type Conversation struct {
	ID         string    `json:"id" db:"id"`
	CustomerID string    `json:"customer_id,omitempty" db:"customer_id"`
	Status     string    `json:"status" db:"status"`
	Priority   string    `json:"priority,omitempty" db:"priority"`
	Category   string    `json:"category,omitempty" db:"category"`
	Sentiment  string    `json:"sentiment,omitempty" db:"sentiment"`
	Language   string    `json:"language,omitempty" db:"language"`
	Summary    string    `json:"summary,omitempty" db:"summary"`
	TicketID   string    `json:"ticket_id,omitempty" db:"ticket_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// ConversationUpdate is a partial update; nil fields are left untouched.
type ConversationUpdate struct {
	Status    *string
	Priority  *string
	Category  *string
	Sentiment *string
	Language  *string
	Summary   *string
	TicketID  *string
}

// IsEmpty reports whether no field is set.
func (u ConversationUpdate) IsEmpty() bool {
	return u.Status == nil && u.Priority == nil && u.Category == nil && u.Sentiment == nil &&
		u.Language == nil && u.Summary == nil && u.TicketID == nil
}

// Ticket status values.
const (
	TicketOpen       = "open"
	TicketInProgress = "in_progress"
	TicketResolved   = "resolved"
	TicketClosed     = "closed"
)

// Ticket is a service ticket created from a conversation.
type Ticket struct {
	ID             string    `json:"id" db:"id"`
	Number         string    `json:"number" db:"number"`
	ConversationID string    `json:"conversation_id,omitempty" db:"conversation_id"`
	CustomerID     string    `json:"customer_id,omitempty" db:"customer_id"`
	Title          string    `json:"title" db:"title"`
	Description    string    `json:"description,omitempty" db:"description"`
	Status         string    `json:"status" db:"status"`
	Priority       string    `json:"priority" db:"priority"`
	Category       string    `json:"category,omitempty" db:"category"`
	Memo           string    `json:"memo,omitempty" db:"memo"`
	CreatedBy      string    `json:"created_by,omitempty" db:"created_by"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TicketUpdate is a partial ticket update; nil fields are left untouched.
type TicketUpdate struct {
	Status   *string
	Priority *string
	Memo     *string
}

// IsEmpty reports whether no field is set.
func (u TicketUpdate) IsEmpty() bool {
	return u.Status == nil && u.Priority == nil && u.Memo == nil
}

// Notification is addressed to a staff user.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Link      string    `json:"link,omitempty" db:"link"`
	Read      bool      `json:"read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
