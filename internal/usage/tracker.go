// Package usage keeps the daily token and cost buckets.
package usage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/telemetry"
	"github.com/infohyun/aramcrm-sub000/internal/tokens"
)

// DateLayout is the bucket date format.
const DateLayout = "2006-01-02"

// Record is the usage of one orchestration run. Track must be called once
// per run.
type Record struct {
	// AgentID is the agent credited with the reply; empty skips the
	// per-agent bucket.
	AgentID         domain.AgentID
	TokenInput      int
	TokenOutput     int
	NewConversation bool
	At              time.Time
}

// Tracker upserts usage buckets.
type Tracker struct {
	store   ports.UsageStore
	pricing tokens.Pricing
	metrics *telemetry.Metrics
	logger  *slog.Logger
}

// NewTracker returns a tracker writing to store. metrics may be nil.
func NewTracker(store ports.UsageStore, pricing tokens.Pricing, metrics *telemetry.Metrics, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, pricing: pricing, metrics: metrics, logger: logger}
}

// Pricing returns the rates used for cost estimates.
func (t *Tracker) Pricing() tokens.Pricing {
	return t.pricing
}

// Track adds r to the aggregate bucket and to the bucket of r.AgentID for
// the UTC date of r.At. Both upserts are attempted; their errors are joined.
func (t *Tracker) Track(ctx context.Context, r Record) error {
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	date := at.UTC().Format(DateLayout)

	cost := t.pricing.Cost(r.TokenInput, r.TokenOutput)
	delta := domain.UsageDelta{
		Calls:            1,
		TokenInput:       int64(r.TokenInput),
		TokenOutput:      int64(r.TokenOutput),
		Messages:         1,
		EstimatedCostUSD: cost,
	}
	if r.NewConversation {
		delta.Conversations = 1
	}

	var errs []error
	if err := t.store.UpsertUsage(ctx, date, domain.AggregateAgentID, delta); err != nil {
		errs = append(errs, fmt.Errorf("aggregate bucket: %w", err))
	}
	if r.AgentID != "" && r.AgentID != domain.AggregateAgentID {
		if err := t.store.UpsertUsage(ctx, date, r.AgentID, delta); err != nil {
			errs = append(errs, fmt.Errorf("agent %s bucket: %w", r.AgentID, err))
		}
	}

	t.metrics.RecordUsage(ctx, string(r.AgentID), r.TokenInput, r.TokenOutput, cost)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	t.logger.Debug("usage tracked",
		slog.String("date", date),
		slog.String("agent_id", string(r.AgentID)),
		slog.Int("token_input", r.TokenInput),
		slog.Int("token_output", r.TokenOutput),
		slog.Float64("cost_usd", cost))
	return nil
}

// Daily returns every bucket recorded for date (DateLayout).
func (t *Tracker) Daily(ctx context.Context, date string) ([]domain.UsageBucket, error) {
	if _, err := time.Parse(DateLayout, date); err != nil {
		return nil, fmt.Errorf("invalid date %q: want YYYY-MM-DD", date)
	}
	return t.store.GetUsage(ctx, date)
}
