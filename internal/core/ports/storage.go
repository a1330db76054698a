package ports

import (
	"context"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// AgentConfigStore reads and toggles agent enablement.
type AgentConfigStore interface {
	// ListAgentConfigs returns the persisted enablement flags. Agents with no
	// row are treated as enabled by callers.
	ListAgentConfigs(ctx context.Context) ([]domain.AgentConfig, error)

	// SetAgentEnabled creates or updates the flag for one agent.
	SetAgentEnabled(ctx context.Context, id domain.AgentID, enabled bool) error
}

// FAQStore is searched by the FAQ agent.
type FAQStore interface {
	// SearchFAQ returns entries whose question or answer contains query.
	SearchFAQ(ctx context.Context, query string, limit int) ([]domain.FAQEntry, error)

	// AddFAQ stores a new entry.
	AddFAQ(ctx context.Context, entry *domain.FAQEntry) error
}

// TicketStore persists service tickets.
type TicketStore interface {
	// CountTickets returns the number of tickets ever created.
	CountTickets(ctx context.Context) (int, error)
	// CreateTicket stores ticket as given; a duplicate Number fails.
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error
	// CreateNumberedTicket stores ticket with Number set to number(seq),
	// where seq follows the tickets already stored. Concurrent calls never
	// get the same seq.
	CreateNumberedTicket(ctx context.Context, ticket *domain.Ticket, number func(seq int) string) error
	UpdateTicket(ctx context.Context, id string, update domain.TicketUpdate) error
	GetTicket(ctx context.Context, id string) (*domain.Ticket, error)
}

// ConversationStore reads and partially updates conversations.
type ConversationStore interface {
	// CreateConversation inserts a conversation when it does not exist yet.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	UpdateConversation(ctx context.Context, id string, update domain.ConversationUpdate) error
}

// NotificationStore persists staff notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *domain.Notification) error
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)
}

// UsageStore keeps the daily usage buckets.
type UsageStore interface {
	// UpsertUsage creates the (date, agent) bucket from delta when absent,
	// otherwise adds delta to the existing counters.
	UpsertUsage(ctx context.Context, date string, agentID domain.AgentID, delta domain.UsageDelta) error

	// GetUsage returns every bucket recorded for date.
	GetUsage(ctx context.Context, date string) ([]domain.UsageBucket, error)
}

// AgentLogStore is the append-only audit log of stage attempts.
type AgentLogStore interface {
	AppendAgentLogs(ctx context.Context, entries []domain.AgentLogEntry) error
	ListAgentLogs(ctx context.Context, conversationID string, opts LogListOptions) ([]domain.AgentLogEntry, error)
}

// LogListOptions controls agent log listing.
type LogListOptions struct {
	Limit  int
	Offset int
	Since  time.Time
}

// StorageProvider manages all storage operations the core needs.
// Implementations: SQL (sqlite, postgres, mysql) and in-memory.
type StorageProvider interface {
	AgentConfigStore
	FAQStore
	TicketStore
	ConversationStore
	NotificationStore
	UsageStore
	AgentLogStore

	Close() error
}
