// Package memory is an in-memory ports.StorageProvider for tests and
// single-process deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

type usageKey struct {
	date    string
	agentID domain.AgentID
}

// Store is an in-memory implementation of ports.StorageProvider.
type Store struct {
	mu            sync.RWMutex
	agentConfigs  map[domain.AgentID]domain.AgentConfig
	faqs          []domain.FAQEntry
	tickets       map[string]*domain.Ticket
	ticketCount   int
	conversations map[string]*domain.Conversation
	notifications []domain.Notification
	usage         map[usageKey]*domain.UsageBucket
	logs          []domain.AgentLogEntry
}

var _ ports.StorageProvider = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		agentConfigs:  make(map[domain.AgentID]domain.AgentConfig),
		tickets:       make(map[string]*domain.Ticket),
		conversations: make(map[string]*domain.Conversation),
		usage:         make(map[usageKey]*domain.UsageBucket),
	}
}

func (s *Store) ListAgentConfigs(ctx context.Context) ([]domain.AgentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.AgentConfig, 0, len(s.agentConfigs))
	for _, c := range s.agentConfigs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *Store) SetAgentEnabled(ctx context.Context, id domain.AgentID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.agentConfigs[id] = domain.AgentConfig{AgentID: id, Enabled: enabled, UpdatedAt: time.Now().UTC()}
	return nil
}

func (s *Store) SearchFAQ(ctx context.Context, query string, limit int) ([]domain.FAQEntry, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FAQEntry
	for _, e := range s.faqs {
		if strings.Contains(strings.ToLower(e.Question), query) || strings.Contains(strings.ToLower(e.Answer), query) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) AddFAQ(ctx context.Context, entry *domain.FAQEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	for _, e := range s.faqs {
		if e.ID == entry.ID {
			return fmt.Errorf("faq entry %s already exists", entry.ID)
		}
	}
	s.faqs = append(s.faqs, *entry)
	return nil
}

func (s *Store) CountTickets(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ticketCount, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTicketLocked(t)
}

func (s *Store) CreateNumberedTicket(ctx context.Context, t *domain.Ticket, number func(seq int) string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := s.ticketCount + 1
	for s.numberTakenLocked(number(seq)) {
		seq++
	}
	t.Number = number(seq)
	return s.createTicketLocked(t)
}

func (s *Store) numberTakenLocked(number string) bool {
	for _, existing := range s.tickets {
		if existing.Number == number {
			return true
		}
	}
	return false
}

func (s *Store) createTicketLocked(t *domain.Ticket) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if _, exists := s.tickets[t.ID]; exists {
		return fmt.Errorf("ticket %s already exists", t.ID)
	}
	if s.numberTakenLocked(t.Number) {
		return fmt.Errorf("ticket number %s already exists", t.Number)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.UpdatedAt = t.CreatedAt

	stored := *t
	s.tickets[t.ID] = &stored
	s.ticketCount++
	return nil
}

func (s *Store) UpdateTicket(ctx context.Context, id string, u domain.TicketUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tickets[id]
	if !ok {
		return fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Memo != nil {
		t.Memo = *u.Memo
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tickets[id]
	if !ok {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	out := *t
	return &out, nil
}

// Tickets returns every stored ticket ordered by number.
func (s *Store) Tickets() []domain.Ticket {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (s *Store) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[c.ID]; exists {
		return nil
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = domain.ConversationOpen
	}

	stored := *c
	s.conversations[c.ID] = &stored
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	out := *c
	return &out, nil
}

func (s *Store) UpdateConversation(ctx context.Context, id string, u domain.ConversationUpdate) error {
	if u.IsEmpty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	for _, f := range []struct {
		src *string
		dst *string
	}{
		{u.Status, &c.Status},
		{u.Priority, &c.Priority},
		{u.Category, &c.Category},
		{u.Sentiment, &c.Sentiment},
		{u.Language, &c.Language},
		{u.Summary, &c.Summary},
		{u.TicketID, &c.TicketID},
	} {
		if f.src != nil {
			*f.dst = *f.src
		}
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	s.notifications = append(s.notifications, *n)
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Notification
	for i := len(s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		if s.notifications[i].UserID == userID {
			out = append(out, s.notifications[i])
		}
	}
	return out, nil
}

func (s *Store) UpsertUsage(ctx context.Context, date string, agentID domain.AgentID, d domain.UsageDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{date: date, agentID: agentID}
	b, ok := s.usage[key]
	if !ok {
		b = &domain.UsageBucket{Date: date, AgentID: agentID}
		s.usage[key] = b
	}
	b.Calls += d.Calls
	b.TokenInput += d.TokenInput
	b.TokenOutput += d.TokenOutput
	b.Messages += d.Messages
	b.Conversations += d.Conversations
	b.EstimatedCostUSD += d.EstimatedCostUSD
	return nil
}

func (s *Store) GetUsage(ctx context.Context, date string) ([]domain.UsageBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.UsageBucket
	for key, b := range s.usage {
		if key.date == date {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}

func (s *Store) AppendAgentLogs(ctx context.Context, entries []domain.AgentLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	for _, e := range entries {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.Output = domain.Excerpt(e.Output)
		s.logs = append(s.logs, e)
	}
	return nil
}

// ListAgentLogs returns entries in append order.
func (s *Store) ListAgentLogs(ctx context.Context, conversationID string, opts ports.LogListOptions) ([]domain.AgentLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []domain.AgentLogEntry
	for _, e := range s.logs {
		if e.ConversationID != conversationID {
			continue
		}
		if !opts.Since.IsZero() && e.CreatedAt.Before(opts.Since) {
			continue
		}
		matched = append(matched, e)
	}

	// Simple pagination
	start := opts.Offset
	if start >= len(matched) {
		return []domain.AgentLogEntry{}, nil
	}
	end := len(matched)
	if opts.Limit > 0 && start+opts.Limit < end {
		end = start + opts.Limit
	}
	return matched[start:end], nil
}

func (s *Store) Close() error {
	return nil
}
