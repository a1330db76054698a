// Package orchestrator drives one customer message through the agent
// pipeline: translation, sentiment, classification, the concurrent
// specialist fan-out, primary selection and the post-join stages.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/infohyun/aramcrm-sub000/internal/actions"
	"github.com/infohyun/aramcrm-sub000/internal/agent"
	"github.com/infohyun/aramcrm-sub000/internal/classifier"
	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pipeline"
	"github.com/infohyun/aramcrm-sub000/internal/telemetry"
	"github.com/infohyun/aramcrm-sub000/internal/usage"
)

// ErrInvalidRequest is returned for requests without a message or
// conversation id. It is the only error Orchestrate returns.
var ErrInvalidRequest = errors.New("invalid orchestration request")

// AgentRunner runs registered agents. *agent.Registry implements it.
type AgentRunner interface {
	Run(ctx context.Context, id domain.AgentID, in *domain.AgentInput) (*domain.AgentOutput, error)
	Name(id domain.AgentID) string
}

// Store is the persistence the orchestrator reads and writes directly.
type Store interface {
	ports.AgentConfigStore
	ports.ConversationStore
	ports.AgentLogStore
}

// Request is one inbound customer message.
type Request struct {
	Message        string                  `json:"message"`
	ConversationID string                  `json:"conversation_id"`
	MessageID      string                  `json:"message_id,omitempty"`
	UserID         string                  `json:"user_id"`
	CustomerID     string                  `json:"customer_id,omitempty"`
	History        []domain.HistoryMessage `json:"history,omitempty"`
}

// Deps are the collaborators of an Orchestrator. Metrics, Publisher and
// Logger are optional.
type Deps struct {
	Agents     AgentRunner
	Classifier *classifier.Classifier
	Store      Store
	Actions    *actions.Executor
	Tracker    *usage.Tracker
	Publisher  ports.EventPublisher
	Metrics    *telemetry.Metrics
	Logger     *slog.Logger
	// Stages are appended to the built-in post-join stages.
	Stages []pipeline.StageConfig
}

// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	agents     AgentRunner
	classifier *classifier.Classifier
	store      Store
	actions    *actions.Executor
	tracker    *usage.Tracker
	publisher  ports.EventPublisher
	metrics    *telemetry.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
	extra      []pipeline.StageConfig
	opts       atomic.Pointer[Options]
	now        func() time.Time
}

// New returns an orchestrator using opts until SetOptions is called.
func New(deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		agents:     deps.Agents,
		classifier: deps.Classifier,
		store:      deps.Store,
		actions:    deps.Actions,
		tracker:    deps.Tracker,
		publisher:  deps.Publisher,
		metrics:    deps.Metrics,
		logger:     logger,
		tracer:     otel.Tracer("aramcrm/orchestrator"),
		extra:      deps.Stages,
		now:        time.Now,
	}
	o.SetOptions(opts)
	return o
}

// SetOptions replaces the options used by runs that start afterwards.
func (o *Orchestrator) SetOptions(opts Options) {
	opts = opts.normalized()
	o.opts.Store(&opts)
}

// Options returns the current options.
func (o *Orchestrator) Options() Options {
	return *o.opts.Load()
}

// run is the per-request state shared by the stages.
type run struct {
	opts    Options
	enabled map[domain.AgentID]bool
	state   *ports.RunState
	newConv bool
	userID  string
}

// Orchestrate runs the full pipeline for req. Every stage failure is
// isolated and recorded in the agent logs, so a valid request always gets a
// complete result.
func (o *Orchestrator) Orchestrate(ctx context.Context, req Request) (*domain.OrchestratorResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("%w: message is empty", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", ErrInvalidRequest)
	}
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.orchestrate",
		trace.WithAttributes(
			attribute.String("conversation.id", req.ConversationID),
			attribute.String("message.id", req.MessageID),
		))
	defer span.End()

	r := &run{
		opts:   o.Options(),
		userID: req.UserID,
		state: &ports.RunState{
			Input: &domain.AgentInput{
				ConversationID:  req.ConversationID,
				MessageID:       req.MessageID,
				OriginalMessage: req.Message,
				History:         req.History,
				UserID:          req.UserID,
				CustomerID:      req.CustomerID,
			},
			Result: &domain.OrchestratorResult{
				Actions:   []domain.AgentAction{},
				AgentLogs: []domain.AgentLogEntry{},
			},
			StartedAt: o.now(),
		},
	}

	r.newConv = o.ensureConversation(ctx, req)
	r.enabled = o.enabledAgents(ctx)

	o.translate(ctx, r)
	o.analyzeSentiment(ctx, r)
	agents := o.classify(ctx, r)
	o.enrichConversation(ctx, r)
	o.attachReport(ctx, r, agents)

	outputs := o.fanOut(ctx, r, agents)
	o.resolve(ctx, r, outputs)

	failed := o.runStages(ctx, o.reviewStages(r), r.state)

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.RecordTimeout)
	defer cancel()
	failed = append(failed, o.runStages(recordCtx, o.recordStages(r), r.state)...)

	result := r.state.Result
	duration := o.now().Sub(r.state.StartedAt)
	fallback := r.state.Primary == nil
	o.metrics.RecordRun(ctx, duration, fallback)
	span.SetAttributes(
		attribute.String("agent.id", string(result.AgentID)),
		attribute.Bool("orchestrator.fallback", fallback),
		attribute.Int("orchestrator.failed_stages", len(failed)),
	)
	if fallback {
		span.SetStatus(codes.Error, "no specialist succeeded")
	}

	o.logger.InfoContext(ctx, "orchestration completed",
		slog.String("conversation_id", req.ConversationID),
		slog.String("message_id", req.MessageID),
		slog.String("agent_id", string(result.AgentID)),
		slog.String("category", result.Category),
		slog.Int("actions", len(result.Actions)),
		slog.Int("token_input", result.TokenUsage.Input),
		slog.Int("token_output", result.TokenUsage.Output),
		slog.Int("failed_stages", len(failed)),
		slog.Duration("duration", duration),
	)
	return result, nil
}

func (o *Orchestrator) runStages(ctx context.Context, stages []pipeline.StageConfig, state *ports.RunState) []ports.StageError {
	exec := pipeline.NewExecutor(pipeline.ExecutorConfig{
		Stages:  stages,
		Logger:  o.logger,
		Metrics: o.metrics,
	})
	return exec.Run(ctx, state)
}

// ensureConversation creates the conversation on first contact and reports
// whether it did.
func (o *Orchestrator) ensureConversation(ctx context.Context, req Request) bool {
	_, err := o.store.GetConversation(ctx, req.ConversationID)
	if err == nil {
		return false
	}
	if !errors.Is(err, domain.ErrNotFound) {
		o.logger.WarnContext(ctx, "conversation lookup failed",
			slog.String("conversation_id", req.ConversationID),
			slog.String("error", err.Error()))
		return false
	}

	now := o.now()
	err = o.store.CreateConversation(ctx, &domain.Conversation{
		ID:         req.ConversationID,
		CustomerID: req.CustomerID,
		Status:     domain.ConversationOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		o.logger.WarnContext(ctx, "conversation create failed",
			slog.String("conversation_id", req.ConversationID),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// enabledAgents reads the persisted enablement flags. A read failure leaves
// every agent enabled.
func (o *Orchestrator) enabledAgents(ctx context.Context) map[domain.AgentID]bool {
	enabled := make(map[domain.AgentID]bool)
	cfgs, err := o.store.ListAgentConfigs(ctx)
	if err != nil {
		o.logger.WarnContext(ctx, "agent configs unavailable, treating all agents as enabled",
			slog.String("error", err.Error()))
		return enabled
	}
	for _, c := range cfgs {
		enabled[c.AgentID] = c.Enabled
	}
	return enabled
}

func isEnabled(enabled map[domain.AgentID]bool, id domain.AgentID) bool {
	on, ok := enabled[id]
	return !ok || on
}

func (o *Orchestrator) translate(ctx context.Context, r *run) {
	in := r.state.Input
	in.DetectedLanguage = r.opts.DefaultLocale
	if !r.opts.TranslationEnabled || !isEnabled(r.enabled, domain.AgentTranslation) {
		return
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.translate")
	defer span.End()

	out, entry, err := o.call(ctx, r, domain.AgentTranslation, "translate", in)
	if err == nil {
		if t, ok := agent.ParseTranslation(out.Content); ok {
			in.TranslatedMessage = t.TranslatedText
			if t.DetectedLanguage != "" {
				in.DetectedLanguage = t.DetectedLanguage
			}
		} else {
			entry.Error = "translation reply not usable"
		}
	}
	r.state.AppendLog(entry)
	span.SetAttributes(attribute.String("language", in.DetectedLanguage))
}

func (o *Orchestrator) analyzeSentiment(ctx context.Context, r *run) {
	if !r.opts.SentimentEnabled || !isEnabled(r.enabled, domain.AgentSentiment) {
		return
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.sentiment")
	defer span.End()

	in := r.state.Input
	out, entry, err := o.call(ctx, r, domain.AgentSentiment, "analyze_sentiment", in)
	if err == nil {
		if s, ok := agent.ParseSentiment(out.Content); ok {
			in.Sentiment = s
			span.SetAttributes(
				attribute.String("sentiment", string(s.Sentiment)),
				attribute.String("urgency", string(s.Urgency)),
			)
		} else {
			entry.Error = "sentiment reply not usable"
		}
	}
	r.state.AppendLog(entry)
}

func (o *Orchestrator) classify(ctx context.Context, r *run) []domain.AgentID {
	ctx, span := o.tracer.Start(ctx, "orchestrator.classify")
	defer span.End()

	callCtx, cancel := o.withTimeout(ctx, r.opts)
	defer cancel()

	start := o.now()
	cls, used, err := o.classifier.Classify(callCtx, r.state.Input, r.enabled, r.opts.MaxAgents)
	elapsed := o.now().Sub(start)
	o.metrics.RecordAgentCall(ctx, string(classifier.StageID), elapsed, err)

	entry := o.newEntry(r, classifier.StageID, classifier.StageName, "classify")
	entry.Confidence = cls.Confidence
	entry.DurationMs = elapsed.Milliseconds()
	entry.TokenInput = used.Input
	entry.TokenOutput = used.Output
	entry.Output = domain.Excerpt(fmt.Sprintf("%s: %s", cls.Category, joinIDs(cls.Agents)))
	if err != nil {
		entry.Error = domain.Excerpt(err.Error())
		span.RecordError(err)
		o.logger.WarnContext(ctx, "classification failed, using default routing",
			slog.String("conversation_id", r.state.Input.ConversationID),
			slog.String("error", err.Error()))
	}
	r.state.AppendLog(entry)

	r.state.Result.Category = cls.Category
	span.SetAttributes(
		attribute.String("category", cls.Category),
		attribute.String("agents", joinIDs(cls.Agents)),
	)
	return cls.Agents
}

// enrichConversation writes what the early stages learned back to the
// conversation. Failures are logged only.
func (o *Orchestrator) enrichConversation(ctx context.Context, r *run) {
	in := r.state.Input
	update := domain.ConversationUpdate{}
	if in.DetectedLanguage != "" {
		update.Language = strPtr(in.DetectedLanguage)
	}
	if c := r.state.Result.Category; c != "" {
		update.Category = strPtr(c)
	}
	if s := in.Sentiment; s != nil {
		update.Sentiment = strPtr(string(s.Sentiment))
		update.Priority = strPtr(string(s.Priority))
	}
	if update.IsEmpty() {
		return
	}
	if err := o.store.UpdateConversation(ctx, in.ConversationID, update); err != nil {
		o.logger.WarnContext(ctx, "conversation enrichment failed",
			slog.String("conversation_id", in.ConversationID),
			slog.String("error", err.Error()))
	}
}

// attachReport hands today's usage figures to the reporting agent.
func (o *Orchestrator) attachReport(ctx context.Context, r *run, agents []domain.AgentID) {
	if o.tracker == nil || !containsID(agents, domain.AgentReporting) {
		return
	}
	date := r.state.StartedAt.UTC().Format(usage.DateLayout)
	buckets, err := o.tracker.Daily(ctx, date)
	if err != nil {
		o.logger.WarnContext(ctx, "usage snapshot for report failed", slog.String("error", err.Error()))
		return
	}
	r.state.Input.Context.Report = &domain.ReportContext{Date: date, Usage: buckets}
}

// call runs one agent under the per-call timeout and builds its log entry.
// The entry is not appended.
func (o *Orchestrator) call(ctx context.Context, r *run, id domain.AgentID, action string, in *domain.AgentInput) (*domain.AgentOutput, domain.AgentLogEntry, error) {
	ctx, span := o.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("agent.id", string(id))))
	defer span.End()

	callCtx, cancel := o.withTimeout(ctx, r.opts)
	defer cancel()

	start := o.now()
	out, err := o.agents.Run(callCtx, id, in)
	elapsed := o.now().Sub(start)
	if err == nil && out == nil {
		err = fmt.Errorf("%s returned no output", id)
	}
	o.metrics.RecordAgentCall(ctx, string(id), elapsed, err)

	entry := o.newEntry(r, id, o.agents.Name(id), action)
	entry.DurationMs = elapsed.Milliseconds()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		entry.Error = domain.Excerpt(err.Error())
		level := slog.LevelWarn
		if domain.IsAgentNotFound(err) {
			level = slog.LevelError
		}
		o.logger.Log(ctx, level, "agent call failed",
			slog.String("agent_id", string(id)),
			slog.String("conversation_id", in.ConversationID),
			slog.String("error", err.Error()))
		return nil, entry, err
	}

	entry.Confidence = out.Confidence
	entry.TokenInput = out.TokenInput
	entry.TokenOutput = out.TokenOutput
	entry.Output = domain.Excerpt(out.Content)
	span.SetAttributes(attribute.Float64("agent.confidence", out.Confidence))
	return out, entry, nil
}

func (o *Orchestrator) newEntry(r *run, id domain.AgentID, name, action string) domain.AgentLogEntry {
	return domain.AgentLogEntry{
		ConversationID: r.state.Input.ConversationID,
		MessageID:      r.state.Input.MessageID,
		AgentID:        id,
		AgentName:      name,
		Action:         action,
		CreatedAt:      o.now(),
	}
}

func (o *Orchestrator) withTimeout(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.AgentTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, opts.AgentTimeout)
}

func strPtr(s string) *string { return &s }

func containsID(ids []domain.AgentID, id domain.AgentID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func joinIDs(ids []domain.AgentID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}
