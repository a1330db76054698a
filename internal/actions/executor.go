// Package actions applies the side effects requested by agents: tickets,
// escalation, conversation updates and staff notifications.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// Store is the persistence the executor writes to.
type Store interface {
	ports.TicketStore
	ports.ConversationStore
	ports.NotificationStore
}

// ExecContext identifies who and what the actions apply to.
type ExecContext struct {
	ConversationID string
	MessageID      string
	UserID         string
	CustomerID     string
}

// Result is the outcome of one Execute call. Success is false only when the
// context ended before every action was attempted; individual failures are
// reported in Results.
type Result struct {
	Success bool                  `json:"success"`
	Results []domain.ActionResult `json:"results"`
}

// Executor applies actions one at a time and never stops on a failed action.
type Executor struct {
	store     Store
	publisher ports.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures an Executor.
type Option func(*Executor)

// WithPublisher publishes ticket and notification events to p.
func WithPublisher(p ports.EventPublisher) Option {
	return func(e *Executor) {
		e.publisher = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithClock overrides time.Now, used for ticket numbers and timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor returns an executor writing to store.
func NewExecutor(store Store, opts ...Option) *Executor {
	e := &Executor{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer("aramcrm/actions"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// errMissingField is wrapped by payload validation failures.
var errMissingField = errors.New("missing required field")

// Execute applies actions in order.
func (e *Executor) Execute(ctx context.Context, actions []domain.AgentAction, ec ExecContext) Result {
	ctx, span := e.tracer.Start(ctx, "actions.execute",
		trace.WithAttributes(
			attribute.String("conversation.id", ec.ConversationID),
			attribute.Int("actions.count", len(actions)),
		))
	defer span.End()

	res := Result{Success: true, Results: make([]domain.ActionResult, 0, len(actions))}
	failed := 0
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			res.Success = false
			span.SetStatus(codes.Error, err.Error())
			e.logger.WarnContext(ctx, "action execution interrupted",
				slog.String("conversation_id", ec.ConversationID),
				slog.Int("remaining", len(actions)-len(res.Results)))
			break
		}

		r := e.apply(ctx, a, ec)
		if !r.Success {
			failed++
			e.logger.WarnContext(ctx, "action failed",
				slog.String("conversation_id", ec.ConversationID),
				slog.String("type", string(a.Type)),
				slog.String("error", r.Error))
		}
		res.Results = append(res.Results, r)
	}
	span.SetAttributes(attribute.Int("actions.failed", failed))
	return res
}

func (e *Executor) apply(ctx context.Context, a domain.AgentAction, ec ExecContext) domain.ActionResult {
	var (
		data map[string]any
		err  error
	)
	switch a.Type {
	case domain.ActionCreateTicket:
		data, err = e.createTicket(ctx, a.Payload, ec)
	case domain.ActionUpdateTicket:
		data, err = e.updateTicket(ctx, a.Payload)
	case domain.ActionEscalate:
		data, err = e.escalate(ctx, a.Payload, ec)
	case domain.ActionUpdateConversation:
		data, err = e.updateConversation(ctx, a.Payload, ec)
	case domain.ActionNotify:
		data, err = e.notify(ctx, a.Payload, ec)
	default:
		err = fmt.Errorf("unknown action type %q", a.Type)
	}

	r := domain.ActionResult{Type: a.Type, Success: err == nil, Data: data}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// TicketNumber formats the externally visible number of the seq-th ticket.
func TicketNumber(at time.Time, seq int) string {
	return fmt.Sprintf("TK-%s-%04d", at.Format("20060102"), seq)
}

func (e *Executor) createTicket(ctx context.Context, p map[string]any, ec ExecContext) (map[string]any, error) {
	title := str(p, "title")
	if title == "" {
		return nil, fmt.Errorf("create_ticket: %w: title", errMissingField)
	}

	now := e.now()
	priority := domain.Priority(str(p, "priority"))
	if !priority.Valid() {
		priority = domain.PriorityMedium
	}
	t := &domain.Ticket{
		ID:             uuid.NewString(),
		ConversationID: ec.ConversationID,
		CustomerID:     ec.CustomerID,
		Title:          title,
		Description:    str(p, "description"),
		Status:         domain.TicketOpen,
		Priority:       string(priority),
		Category:       str(p, "category"),
		CreatedBy:      ec.UserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	number := func(seq int) string { return TicketNumber(now, seq) }
	if err := e.store.CreateNumberedTicket(ctx, t, number); err != nil {
		return nil, fmt.Errorf("create_ticket: %w", err)
	}

	data := map[string]any{"ticketId": t.ID, "ticketNumber": t.Number, "linked": false}
	if ec.ConversationID != "" {
		if err := e.store.UpdateConversation(ctx, ec.ConversationID, domain.ConversationUpdate{TicketID: &t.ID}); err != nil {
			e.logger.WarnContext(ctx, "ticket created but not linked to conversation",
				slog.String("ticket_id", t.ID),
				slog.String("conversation_id", ec.ConversationID),
				slog.String("error", err.Error()))
		} else {
			data["linked"] = true
		}
	}

	e.publish(ctx, domain.LifecycleTicketCreated, ec, t)
	return data, nil
}

func (e *Executor) updateTicket(ctx context.Context, p map[string]any) (map[string]any, error) {
	id := str(p, "ticketId")
	if id == "" {
		return nil, fmt.Errorf("update_ticket: %w: ticketId", errMissingField)
	}

	var u domain.TicketUpdate
	if v := str(p, "status"); v != "" {
		u.Status = &v
	}
	if v := str(p, "priority"); v != "" {
		u.Priority = &v
	}
	if v := str(p, "memo"); v != "" {
		u.Memo = &v
	}
	if u.IsEmpty() {
		return map[string]any{"ticketId": id, "updated": false}, nil
	}

	if err := e.store.UpdateTicket(ctx, id, u); err != nil {
		return nil, fmt.Errorf("update_ticket %s: %w", id, err)
	}
	return map[string]any{"ticketId": id, "updated": true}, nil
}

func (e *Executor) escalate(ctx context.Context, p map[string]any, ec ExecContext) (map[string]any, error) {
	if ec.ConversationID == "" {
		return nil, fmt.Errorf("escalate: %w: conversationId", errMissingField)
	}
	status := domain.ConversationEscalated
	priority := string(domain.PriorityUrgent)
	if err := e.store.UpdateConversation(ctx, ec.ConversationID, domain.ConversationUpdate{
		Status:   &status,
		Priority: &priority,
	}); err != nil {
		return nil, fmt.Errorf("escalate: %w", err)
	}
	data := map[string]any{"conversationId": ec.ConversationID, "status": status, "priority": priority}
	if reason := str(p, "reason"); reason != "" {
		data["reason"] = reason
	}
	return data, nil
}

func (e *Executor) updateConversation(ctx context.Context, p map[string]any, ec ExecContext) (map[string]any, error) {
	id := str(p, "conversationId")
	if id == "" {
		id = ec.ConversationID
	}
	if id == "" {
		return nil, fmt.Errorf("update_conversation: %w: conversationId", errMissingField)
	}

	var u domain.ConversationUpdate
	fields := map[string]**string{
		"status":    &u.Status,
		"category":  &u.Category,
		"priority":  &u.Priority,
		"sentiment": &u.Sentiment,
		"summary":   &u.Summary,
	}
	updated := make([]string, 0, len(fields))
	for key, dst := range fields {
		if v := str(p, key); v != "" {
			*dst = &v
			updated = append(updated, key)
		}
	}
	if u.IsEmpty() {
		return map[string]any{"conversationId": id, "updated": false}, nil
	}

	if err := e.store.UpdateConversation(ctx, id, u); err != nil {
		return nil, fmt.Errorf("update_conversation %s: %w", id, err)
	}
	return map[string]any{"conversationId": id, "updated": true, "fields": len(updated)}, nil
}

func (e *Executor) notify(ctx context.Context, p map[string]any, ec ExecContext) (map[string]any, error) {
	userID := str(p, "userId")
	if userID == "" {
		userID = ec.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("notify: %w: userId", errMissingField)
	}
	title := str(p, "title")
	if title == "" {
		return nil, fmt.Errorf("notify: %w: title", errMissingField)
	}

	kind := str(p, "type")
	if kind == "" {
		kind = "agent"
	}
	n := &domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		Title:     title,
		Message:   str(p, "message"),
		CreatedAt: e.now(),
	}
	if ec.ConversationID != "" {
		n.Link = "/conversations/" + ec.ConversationID
	}
	if err := e.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}

	e.publish(ctx, domain.LifecycleNotificationCreated, ec, n)
	return map[string]any{"notificationId": n.ID, "userId": userID}, nil
}

// publish sends a lifecycle event. Failures are logged only.
func (e *Executor) publish(ctx context.Context, typ domain.LifecycleEventType, ec ExecContext, data any) {
	if e.publisher == nil {
		return
	}
	event := &domain.LifecycleEvent{
		ID:             uuid.NewString(),
		Type:           typ,
		ConversationID: ec.ConversationID,
		MessageID:      ec.MessageID,
		Timestamp:      e.now(),
		Data:           data,
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WarnContext(ctx, "failed to publish event",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()))
	}
}

// str reads a string payload field. Non-string values are formatted so that
// numeric ids from the model still work.
func str(p map[string]any, key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
