package orchestrator

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// slot is the outcome of one dispatched specialist.
type slot struct {
	id    domain.AgentID
	out   *domain.AgentOutput
	entry domain.AgentLogEntry
	err   error
}

// fanOut runs the selected specialists concurrently and waits for all of
// them. Results keep dispatch order; a failed specialist leaves a slot with
// err set and never cancels its siblings.
func (o *Orchestrator) fanOut(ctx context.Context, r *run, agents []domain.AgentID) []slot {
	ctx, span := o.tracer.Start(ctx, "orchestrator.fan_out")
	defer span.End()
	span.SetAttributes(attribute.Int("agents.count", len(agents)))

	slots := make([]slot, len(agents))
	if len(agents) == 0 {
		return slots
	}

	g := new(errgroup.Group)
	g.SetLimit(r.opts.MaxConcurrency)
	for i, id := range agents {
		// Agents read the input concurrently; each gets its own copy.
		in := *r.state.Input
		g.Go(func() error {
			out, entry, err := o.call(ctx, r, id, "respond", &in)
			slots[i] = slot{id: id, out: out, entry: entry, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, s := range slots {
		r.state.AppendLog(s.entry)
		if s.err != nil {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("agents.failed", failed))
	return slots
}

// selectPrimary returns the successful output with the strictly greatest
// confidence; on ties the earliest dispatched wins. It returns nil when
// every specialist failed.
func selectPrimary(slots []slot) *domain.AgentOutput {
	var primary *domain.AgentOutput
	for _, s := range slots {
		if s.err != nil || s.out == nil {
			continue
		}
		if primary == nil || s.out.Confidence > primary.Confidence {
			primary = s.out
		}
	}
	return primary
}

// resolve fills the result from the specialist outputs. Actions of every
// successful specialist are kept in dispatch order.
func (o *Orchestrator) resolve(ctx context.Context, r *run, slots []slot) {
	res := r.state.Result
	in := r.state.Input

	for _, s := range slots {
		if s.err == nil && s.out != nil {
			res.Actions = append(res.Actions, s.out.Actions...)
		}
	}

	res.Language = in.DetectedLanguage
	res.Sentiment = in.Sentiment

	primary := selectPrimary(slots)
	r.state.Primary = primary
	if primary == nil {
		res.Response = r.opts.FallbackResponse
		res.AgentID = domain.DefaultAgentID
		res.AgentName = o.agents.Name(domain.DefaultAgentID)
		o.logger.WarnContext(ctx, "no specialist succeeded, returning fallback response",
			slog.String("conversation_id", in.ConversationID),
			slog.Int("dispatched", len(slots)))
		return
	}
	res.Response = primary.Content
	res.AgentID = primary.AgentID
	res.AgentName = o.agents.Name(primary.AgentID)
}
