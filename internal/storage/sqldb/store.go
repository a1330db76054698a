// Package sqldb is the SQL implementation of ports.StorageProvider. The
// dialect package hides the differences between SQLite, PostgreSQL and MySQL.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/storage/dialect"
)

// Store is a SQL implementation of ports.StorageProvider that supports
// multiple database dialects.
type Store struct {
	db      *sqlx.DB
	dialect *dialect.Dialect
	now     func() time.Time

	ticketMu sync.Mutex
}

var _ ports.StorageProvider = (*Store)(nil)

// Config holds database connection configuration
type Config struct {
	Driver string // Driver name: sqlite, postgres, mysql
	DSN    string // Data source name / connection string
}

// New creates a new SQL store with the specified configuration.
func New(cfg Config) (*Store, error) {
	d, err := dialect.FromDriverName(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("unsupported database driver: %w", err)
	}

	db, err := sqlx.Open(d.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	for _, stmt := range d.Init {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s init %q: %w", d.Name, stmt, err)
		}
	}

	store := &Store{db: db, dialect: d, now: func() time.Time { return time.Now().UTC() }}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewSQLite creates a new SQLite store.
func NewSQLite(dbPath string) (*Store, error) {
	return New(Config{Driver: "sqlite", DSN: dbPath})
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	cols := s.dialect.Columns
	key, text, ts, boolean, float := cols.Key, cols.Text, cols.Timestamp, cols.Bool, cols.Real

	statements := []string{
		`CREATE TABLE IF NOT EXISTS agent_configs (
agent_id ` + key + ` PRIMARY KEY,
enabled ` + boolean + ` NOT NULL,
updated_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS faq_entries (
id ` + key + ` PRIMARY KEY,
question ` + text + ` NOT NULL,
answer ` + text + ` NOT NULL,
category ` + key + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS conversations (
id ` + key + ` PRIMARY KEY,
customer_id ` + key + ` NOT NULL,
status ` + key + ` NOT NULL,
priority ` + key + ` NOT NULL,
category ` + key + ` NOT NULL,
sentiment ` + key + ` NOT NULL,
language ` + key + ` NOT NULL,
summary ` + text + ` NOT NULL,
ticket_id ` + key + ` NOT NULL,
created_at ` + ts + ` NOT NULL,
updated_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS tickets (
id ` + key + ` PRIMARY KEY,
number ` + key + ` NOT NULL UNIQUE,
conversation_id ` + key + ` NOT NULL,
customer_id ` + key + ` NOT NULL,
title ` + text + ` NOT NULL,
description ` + text + ` NOT NULL,
status ` + key + ` NOT NULL,
priority ` + key + ` NOT NULL,
category ` + key + ` NOT NULL,
memo ` + text + ` NOT NULL,
created_by ` + key + ` NOT NULL,
created_at ` + ts + ` NOT NULL,
updated_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS notifications (
id ` + key + ` PRIMARY KEY,
user_id ` + key + ` NOT NULL,
type ` + key + ` NOT NULL,
title ` + text + ` NOT NULL,
message ` + text + ` NOT NULL,
link ` + text + ` NOT NULL,
is_read ` + boolean + ` NOT NULL,
created_at ` + ts + ` NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS usage_daily (
usage_date ` + key + ` NOT NULL,
agent_id ` + key + ` NOT NULL,
calls BIGINT NOT NULL,
token_input BIGINT NOT NULL,
token_output BIGINT NOT NULL,
messages BIGINT NOT NULL,
conversations BIGINT NOT NULL,
estimated_cost_usd ` + float + ` NOT NULL,
PRIMARY KEY (usage_date, agent_id)
)`,
		`CREATE TABLE IF NOT EXISTS agent_logs (
id ` + key + ` PRIMARY KEY,
conversation_id ` + key + ` NOT NULL,
message_id ` + key + ` NOT NULL,
agent_id ` + key + ` NOT NULL,
agent_name ` + key + ` NOT NULL,
action ` + key + ` NOT NULL,
confidence ` + float + ` NOT NULL,
duration_ms BIGINT NOT NULL,
token_input BIGINT NOT NULL,
token_output BIGINT NOT NULL,
output ` + text + ` NOT NULL,
error_message ` + text + ` NOT NULL,
seq BIGINT NOT NULL,
created_at ` + ts + ` NOT NULL
)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	indexes := []struct{ name, table, columns string }{
		{"idx_tickets_conversation", "tickets", "conversation_id"},
		{"idx_notifications_user", "notifications", "user_id, created_at"},
		{"idx_agent_logs_conversation", "agent_logs", "conversation_id, created_at, seq"},
	}
	for _, idx := range indexes {
		if err := s.createIndex(idx.name, idx.table, idx.columns); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	return nil
}

// mysqlDuplicateKeyName is returned by MySQL when an index already exists.
const mysqlDuplicateKeyName = 1061

func (s *Store) createIndex(name, table, columns string) error {
	if s.dialect.Name != dialect.MySQL {
		_, err := s.db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, columns))
		return err
	}

	// MySQL has no CREATE INDEX IF NOT EXISTS.
	_, err := s.db.Exec(fmt.Sprintf("CREATE INDEX %s ON %s(%s)", name, table, columns))
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateKeyName {
		return nil
	}
	return err
}

func (s *Store) ListAgentConfigs(ctx context.Context) ([]domain.AgentConfig, error) {
	var out []domain.AgentConfig
	query := `SELECT agent_id, enabled, updated_at FROM agent_configs ORDER BY agent_id`
	if err := s.db.SelectContext(ctx, &out, query); err != nil {
		return nil, fmt.Errorf("failed to list agent configs: %w", err)
	}
	return out, nil
}

func (s *Store) SetAgentEnabled(ctx context.Context, id domain.AgentID, enabled bool) error {
	query := s.dialect.Rebind(`INSERT INTO agent_configs (agent_id, enabled, updated_at) VALUES (?, ?, ?) ` +
		s.dialect.UpsertClause([]string{"agent_id"}, []string{"enabled", "updated_at"}))
	if _, err := s.db.ExecContext(ctx, query, string(id), enabled, s.now()); err != nil {
		return fmt.Errorf("failed to set agent %s enabled: %w", id, err)
	}
	return nil
}

func (s *Store) SearchFAQ(ctx context.Context, q string, limit int) ([]domain.FAQEntry, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	pattern := "%" + strings.ToLower(q) + "%"
	query := s.dialect.Rebind(`SELECT id, question, answer, category FROM faq_entries
	          WHERE LOWER(question) LIKE ? OR LOWER(answer) LIKE ?
	          ORDER BY id LIMIT ?`)

	var out []domain.FAQEntry
	if err := s.db.SelectContext(ctx, &out, query, pattern, pattern, limit); err != nil {
		return nil, fmt.Errorf("failed to search faq: %w", err)
	}
	return out, nil
}

func (s *Store) AddFAQ(ctx context.Context, entry *domain.FAQEntry) error {
	if entry.ID == "" {
		entry.ID = newID()
	}
	query := s.dialect.Rebind(`INSERT INTO faq_entries (id, question, answer, category) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, entry.ID, entry.Question, entry.Answer, entry.Category); err != nil {
		return fmt.Errorf("failed to add faq entry: %w", err)
	}
	return nil
}

func (s *Store) CountTickets(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM tickets`); err != nil {
		return 0, fmt.Errorf("failed to count tickets: %w", err)
	}
	return n, nil
}

func (s *Store) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	s.prepareTicket(t)
	if err := s.insertTicket(ctx, s.db, t); err != nil {
		return fmt.Errorf("failed to create ticket: %w", err)
	}
	return nil
}

// ticketNumberAttempts bounds the retries when another writer takes the
// same ticket number first.
const ticketNumberAttempts = 5

// CreateNumberedTicket counts and inserts in one transaction. Writers in this
// process are serialized; a conflict with another process is retried with a
// fresh count.
func (s *Store) CreateNumberedTicket(ctx context.Context, t *domain.Ticket, number func(seq int) string) error {
	s.prepareTicket(t)

	s.ticketMu.Lock()
	defer s.ticketMu.Unlock()

	var err error
	for attempt := 1; attempt <= ticketNumberAttempts; attempt++ {
		if err = s.insertNumberedTicket(ctx, t, number); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return fmt.Errorf("failed to create ticket: %w", err)
}

func (s *Store) insertNumberedTicket(ctx context.Context, t *domain.Ticket, number func(seq int) string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var n int
	if err := tx.GetContext(ctx, &n, `SELECT COUNT(*) FROM tickets`); err != nil {
		return err
	}
	t.Number = number(n + 1)
	if err := s.insertTicket(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) prepareTicket(t *domain.Ticket) {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.CreatedAt
}

func (s *Store) insertTicket(ctx context.Context, ex sqlx.ExecerContext, t *domain.Ticket) error {
	query := s.dialect.Rebind(`INSERT INTO tickets (id, number, conversation_id, customer_id, title, description,
	          status, priority, category, memo, created_by, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := ex.ExecContext(ctx, query,
		t.ID, t.Number, t.ConversationID, t.CustomerID, t.Title, t.Description,
		t.Status, t.Priority, t.Category, t.Memo, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *Store) UpdateTicket(ctx context.Context, id string, u domain.TicketUpdate) error {
	sets, args := setClauses([]column{
		{"status", u.Status},
		{"priority", u.Priority},
		{"memo", u.Memo},
	})
	if len(sets) == 0 {
		return nil
	}
	return s.update(ctx, "tickets", id, sets, args)
}

func (s *Store) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	query := s.dialect.Rebind(`SELECT id, number, conversation_id, customer_id, title, description,
	          status, priority, category, memo, created_by, created_at, updated_at
	          FROM tickets WHERE id = ?`)

	var t domain.Ticket
	err := s.db.GetContext(ctx, &t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ticket %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &t, nil
}

func (s *Store) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	now := s.now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = domain.ConversationOpen
	}

	query := s.dialect.Rebind(`INSERT INTO conversations (id, customer_id, status, priority, category, sentiment,
	          language, summary, ticket_id, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ` + s.dialect.UpsertClause([]string{"id"}, nil))
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.CustomerID, c.Status, c.Priority, c.Category, c.Sentiment,
		c.Language, c.Summary, c.TicketID, c.CreatedAt.UTC(), c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create conversation: %w", err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	query := s.dialect.Rebind(`SELECT id, customer_id, status, priority, category, sentiment,
	          language, summary, ticket_id, created_at, updated_at
	          FROM conversations WHERE id = ?`)

	var c domain.Conversation
	err := s.db.GetContext(ctx, &c, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &c, nil
}

func (s *Store) UpdateConversation(ctx context.Context, id string, u domain.ConversationUpdate) error {
	sets, args := setClauses([]column{
		{"status", u.Status},
		{"priority", u.Priority},
		{"category", u.Category},
		{"sentiment", u.Sentiment},
		{"language", u.Language},
		{"summary", u.Summary},
		{"ticket_id", u.TicketID},
	})
	if len(sets) == 0 {
		return nil
	}
	return s.update(ctx, "conversations", id, sets, args)
}

func (s *Store) CreateNotification(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = newID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}

	query := s.dialect.Rebind(`INSERT INTO notifications (id, user_id, type, title, message, link, is_read, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.UserID, n.Type, n.Title, n.Message, n.Link, n.Read, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := s.dialect.Rebind(`SELECT id, user_id, type, title, message, link, is_read, created_at
	          FROM notifications WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)

	var out []domain.Notification
	if err := s.db.SelectContext(ctx, &out, query, userID, limit); err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return out, nil
}

var usageCounters = []string{"calls", "token_input", "token_output", "messages", "conversations", "estimated_cost_usd"}

func (s *Store) UpsertUsage(ctx context.Context, date string, agentID domain.AgentID, d domain.UsageDelta) error {
	query := s.dialect.Rebind(`INSERT INTO usage_daily (usage_date, agent_id, calls, token_input, token_output,
	          messages, conversations, estimated_cost_usd)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?) ` +
		s.dialect.IncrementClause([]string{"usage_date", "agent_id"}, usageCounters))

	_, err := s.db.ExecContext(ctx, query,
		date, string(agentID), d.Calls, d.TokenInput, d.TokenOutput, d.Messages, d.Conversations, d.EstimatedCostUSD)
	if err != nil {
		return fmt.Errorf("failed to upsert usage %s/%s: %w", date, agentID, err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, date string) ([]domain.UsageBucket, error) {
	query := s.dialect.Rebind(`SELECT usage_date, agent_id, calls, token_input, token_output,
	          messages, conversations, estimated_cost_usd
	          FROM usage_daily WHERE usage_date = ? ORDER BY agent_id`)

	var out []domain.UsageBucket
	if err := s.db.SelectContext(ctx, &out, query, date); err != nil {
		return nil, fmt.Errorf("failed to get usage: %w", err)
	}
	return out, nil
}

// AppendAgentLogs inserts entries in one transaction. seq keeps the batch
// order for entries that share a timestamp.
func (s *Store) AppendAgentLogs(ctx context.Context, entries []domain.AgentLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := s.dialect.Rebind(`INSERT INTO agent_logs (id, conversation_id, message_id, agent_id, agent_name, action,
	          confidence, duration_ms, token_input, token_output, output, error_message, seq, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	now := s.now()
	for i, e := range entries {
		if e.ID == "" {
			e.ID = newID()
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		_, err := tx.ExecContext(ctx, query,
			e.ID, e.ConversationID, e.MessageID, string(e.AgentID), e.AgentName, e.Action,
			e.Confidence, e.DurationMs, e.TokenInput, e.TokenOutput,
			domain.Excerpt(e.Output), e.Error, i, e.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to append agent log: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit agent logs: %w", err)
	}
	return nil
}

func (s *Store) ListAgentLogs(ctx context.Context, conversationID string, opts ports.LogListOptions) ([]domain.AgentLogEntry, error) {
	query := `SELECT id, conversation_id, message_id, agent_id, agent_name, action, confidence, duration_ms,
	          token_input, token_output, output, error_message, created_at
	          FROM agent_logs WHERE conversation_id = ?`
	args := []any{conversationID}
	if !opts.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, opts.Since.UTC())
	}
	query += ` ORDER BY created_at, seq`

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	var out []domain.AgentLogEntry
	if err := s.db.SelectContext(ctx, &out, s.dialect.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list agent logs: %w", err)
	}
	return out, nil
}

func newID() string {
	return uuid.NewString()
}

type column struct {
	name  string
	value *string
}

// setClauses returns "col = ?" fragments and arguments for the non-nil values.
func setClauses(cols []column) ([]string, []any) {
	var sets []string
	var args []any
	for _, c := range cols {
		if c.value == nil {
			continue
		}
		sets = append(sets, c.name+" = ?")
		args = append(args, *c.value)
	}
	return sets, args
}

// update applies sets to the row id of table and bumps updated_at.
func (s *Store) update(ctx context.Context, table, id string, sets []string, args []any) error {
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), id)

	query := s.dialect.Rebind(fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", ")))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update %s %s: %w", table, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", strings.TrimSuffix(table, "s"), id, domain.ErrNotFound)
	}
	return nil
}
