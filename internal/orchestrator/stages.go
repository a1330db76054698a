package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/infohyun/aramcrm-sub000/internal/actions"
	"github.com/infohyun/aramcrm-sub000/internal/agent"
	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/pipeline"
	"github.com/infohyun/aramcrm-sub000/internal/usage"
)

// Post-join stage names, in execution order.
const (
	StageQA      = "qa"
	StageActions = "actions"
	StageUsage   = "usage"
	StageLogs    = "logs"
	StageEvents  = "events"
)

var errReviewUnusable = errors.New("review reply not usable")

// reviewStages still shape the response and run on the request context.
// recordStages persist what the run already spent and run detached from it.
func (o *Orchestrator) reviewStages(r *run) []pipeline.StageConfig {
	return o.postStages(r)[:1]
}

func (o *Orchestrator) recordStages(r *run) []pipeline.StageConfig {
	return append(o.postStages(r)[1:], o.extra...)
}

func (o *Orchestrator) postStages(r *run) []pipeline.StageConfig {
	stage := func(order int, name string, fn func(context.Context, *run) error) pipeline.StageConfig {
		return pipeline.StageConfig{
			Order: order,
			Stage: pipeline.StageFunc{
				StageName: name,
				Fn: func(ctx context.Context, _ *ports.RunState) error {
					return fn(ctx, r)
				},
			},
		}
	}
	return []pipeline.StageConfig{
		stage(10, StageQA, o.review),
		stage(20, StageActions, o.executeActions),
		stage(30, StageUsage, o.trackUsage),
		stage(40, StageLogs, o.persistLogs),
		stage(50, StageEvents, o.publishCompleted),
	}
}

// review lets the QA agent replace the primary response. The agent id of
// the result stays the primary's.
func (o *Orchestrator) review(ctx context.Context, r *run) error {
	primary := r.state.Primary
	if primary == nil || !r.opts.QAEnabled || !isEnabled(r.enabled, domain.AgentQAReview) {
		return nil
	}

	in := *r.state.Input
	in.Context.Review = &domain.ReviewContext{
		OriginalContent: primary.Content,
		OriginalAgentID: primary.AgentID,
	}

	out, entry, err := o.call(ctx, r, domain.AgentQAReview, "review", &in)
	if err != nil {
		r.state.AppendLog(entry)
		return err
	}

	rv, ok := agent.ParseReview(out.Content)
	if !ok {
		entry.Error = errReviewUnusable.Error()
		r.state.AppendLog(entry)
		return errReviewUnusable
	}
	r.state.AppendLog(entry)

	if rv.Approved || rv.RevisedContent == "" {
		return nil
	}

	res := r.state.Result
	res.Response = rv.RevisedContent
	res.AgentName = fmt.Sprintf("%s (reviewed by %s)", res.AgentName, o.agents.Name(domain.AgentQAReview))
	o.logger.InfoContext(ctx, "response revised by review",
		slog.String("conversation_id", in.ConversationID),
		slog.String("agent_id", string(res.AgentID)),
		slog.Int("issues", len(rv.Issues)))
	return nil
}

func (o *Orchestrator) executeActions(ctx context.Context, r *run) error {
	res := r.state.Result
	if o.actions == nil || len(res.Actions) == 0 {
		return nil
	}

	in := r.state.Input
	out := o.actions.Execute(ctx, res.Actions, actions.ExecContext{
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		UserID:         in.UserID,
		CustomerID:     in.CustomerID,
	})
	res.ActionResults = out.Results
	for _, ar := range out.Results {
		o.metrics.RecordAction(ctx, string(ar.Type), ar.Success)
	}
	if !out.Success {
		return fmt.Errorf("action execution interrupted after %d of %d actions: %w",
			len(out.Results), len(res.Actions), context.Cause(ctx))
	}
	return nil
}

func (o *Orchestrator) trackUsage(ctx context.Context, r *run) error {
	if o.tracker == nil {
		return nil
	}
	res := r.state.Result
	return o.tracker.Track(ctx, usage.Record{
		AgentID:         res.AgentID,
		TokenInput:      res.TokenUsage.Input,
		TokenOutput:     res.TokenUsage.Output,
		NewConversation: r.newConv,
		At:              r.state.StartedAt,
	})
}

func (o *Orchestrator) persistLogs(ctx context.Context, r *run) error {
	logs := r.state.Result.AgentLogs
	if len(logs) == 0 {
		return nil
	}
	if err := o.store.AppendAgentLogs(ctx, logs); err != nil {
		return fmt.Errorf("append %d agent logs: %w", len(logs), err)
	}
	return nil
}

func (o *Orchestrator) publishCompleted(ctx context.Context, r *run) error {
	if o.publisher == nil {
		return nil
	}
	res := r.state.Result
	in := r.state.Input
	data := domain.OrchestrationCompletedData{
		AgentID:      res.AgentID,
		Category:     res.Category,
		Language:     res.Language,
		Actions:      len(res.Actions),
		TokenUsage:   res.TokenUsage,
		Duration:     o.now().Sub(r.state.StartedAt),
		FailedStages: len(r.state.FailedStages),
	}
	if res.Sentiment != nil {
		data.Sentiment = res.Sentiment.Sentiment
	}
	return o.publisher.Publish(ctx, &domain.LifecycleEvent{
		ID:             uuid.NewString(),
		Type:           domain.LifecycleOrchestrationCompleted,
		ConversationID: in.ConversationID,
		MessageID:      in.MessageID,
		Timestamp:      o.now(),
		Data:           data,
	})
}
