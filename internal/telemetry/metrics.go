package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "aramcrm/orchestrator"

// Metrics holds the orchestrator instruments. A nil *Metrics records nothing.
type Metrics struct {
	runsTotal       metric.Int64Counter
	runDuration     metric.Float64Histogram
	agentCallsTotal metric.Int64Counter
	agentErrors     metric.Int64Counter
	agentDuration   metric.Float64Histogram
	tokensInput     metric.Int64Counter
	tokensOutput    metric.Int64Counter
	costUSD         metric.Float64Counter
	actionsTotal    metric.Int64Counter
	stageFailures   metric.Int64Counter
}

// MetricsProvider is the result of InitMetrics.
type MetricsProvider struct {
	Metrics  *Metrics
	Handler  http.Handler
	Shutdown func(context.Context) error
}

// InitMetrics wires an OpenTelemetry meter provider to a Prometheus
// registry and returns the /metrics handler for it. When disabled the
// returned Metrics is nil and the handler answers 404.
func InitMetrics(serviceName string, enabled bool) (*MetricsProvider, error) {
	if !enabled {
		return &MetricsProvider{
			Handler:  http.NotFoundHandler(),
			Shutdown: func(context.Context) error { return nil },
		}, nil
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	res, err := newResource(serviceName)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	m, err := NewMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}

	return &MetricsProvider{
		Metrics:  m,
		Handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Shutdown: mp.Shutdown,
	}, nil
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.runsTotal, err = meter.Int64Counter("orchestrator_runs_total",
		metric.WithDescription("Total orchestration runs")); err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("orchestrator_run_duration_seconds",
		metric.WithDescription("Orchestration run duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}
	if m.agentCallsTotal, err = meter.Int64Counter("orchestrator_agent_calls_total",
		metric.WithDescription("Total agent invocations")); err != nil {
		return nil, fmt.Errorf("failed to create agent calls counter: %w", err)
	}
	if m.agentErrors, err = meter.Int64Counter("orchestrator_agent_errors_total",
		metric.WithDescription("Total failed agent invocations")); err != nil {
		return nil, fmt.Errorf("failed to create agent errors counter: %w", err)
	}
	if m.agentDuration, err = meter.Float64Histogram("orchestrator_agent_duration_seconds",
		metric.WithDescription("Agent invocation duration in seconds"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create agent duration histogram: %w", err)
	}
	if m.tokensInput, err = meter.Int64Counter("orchestrator_tokens_input_total",
		metric.WithDescription("Total input tokens sent to the language model")); err != nil {
		return nil, fmt.Errorf("failed to create input tokens counter: %w", err)
	}
	if m.tokensOutput, err = meter.Int64Counter("orchestrator_tokens_output_total",
		metric.WithDescription("Total output tokens returned by the language model")); err != nil {
		return nil, fmt.Errorf("failed to create output tokens counter: %w", err)
	}
	if m.costUSD, err = meter.Float64Counter("orchestrator_estimated_cost_usd_total",
		metric.WithDescription("Estimated language-model cost in USD")); err != nil {
		return nil, fmt.Errorf("failed to create cost counter: %w", err)
	}
	if m.actionsTotal, err = meter.Int64Counter("orchestrator_actions_total",
		metric.WithDescription("Total executed agent actions")); err != nil {
		return nil, fmt.Errorf("failed to create actions counter: %w", err)
	}
	if m.stageFailures, err = meter.Int64Counter("orchestrator_stage_failures_total",
		metric.WithDescription("Total failed post-join stages")); err != nil {
		return nil, fmt.Errorf("failed to create stage failures counter: %w", err)
	}

	return &m, nil
}

// RecordRun records one finished orchestration run.
func (m *Metrics) RecordRun(ctx context.Context, duration time.Duration, fallback bool) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("fallback", fallback))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAgentCall records one agent invocation.
func (m *Metrics) RecordAgentCall(ctx context.Context, agentID string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("agent_id", agentID))
	m.agentCallsTotal.Add(ctx, 1, attrs)
	m.agentDuration.Record(ctx, duration.Seconds(), attrs)
	if err != nil {
		m.agentErrors.Add(ctx, 1, attrs)
	}
}

// RecordUsage records token usage and cost attributed to agentID.
func (m *Metrics) RecordUsage(ctx context.Context, agentID string, input, output int, costUSD float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("agent_id", agentID))
	m.tokensInput.Add(ctx, int64(input), attrs)
	m.tokensOutput.Add(ctx, int64(output), attrs)
	m.costUSD.Add(ctx, costUSD, attrs)
}

// RecordAction records one executed action.
func (m *Metrics) RecordAction(ctx context.Context, actionType string, success bool) {
	if m == nil {
		return
	}
	m.actionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", actionType),
		attribute.Bool("success", success),
	))
}

// RecordStageFailure records a failed post-join stage.
func (m *Metrics) RecordStageFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.stageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}
