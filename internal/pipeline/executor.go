package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
	"github.com/infohyun/aramcrm-sub000/internal/telemetry"
)

// Executor runs post-join stages sequentially in order.
type Executor struct {
	stages  []ports.Stage
	logger  *slog.Logger
	metrics *telemetry.Metrics
	tracer  trace.Tracer
}

// ExecutorConfig configures an executor from stage configurations.
type ExecutorConfig struct {
	Stages  []StageConfig
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// StageConfig is the configuration for a single stage. Stages with equal
// Order keep their relative position.
type StageConfig struct {
	Order int
	Stage ports.Stage
}

// NewExecutor creates an executor from configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	stages := make([]StageConfig, 0, len(cfg.Stages))
	for _, s := range cfg.Stages {
		if s.Stage != nil {
			stages = append(stages, s)
		}
	}
	sort.SliceStable(stages, func(i, j int) bool {
		return stages[i].Order < stages[j].Order
	})

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		stages:  make([]ports.Stage, len(stages)),
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("aramcrm/pipeline"),
	}
	for i, s := range stages {
		e.stages[i] = s.Stage
	}
	return e
}

// Run executes every stage in order and returns the failures. A stage error
// or panic never prevents the following stages from running.
func (e *Executor) Run(ctx context.Context, state *ports.RunState) []ports.StageError {
	var failed []ports.StageError
	for _, stage := range e.stages {
		if err := e.runStage(ctx, stage, state); err != nil {
			failed = append(failed, ports.StageError{Stage: stage.Name(), Err: err})
			state.FailedStages = append(state.FailedStages, stage.Name())
		}
	}
	return failed
}

func (e *Executor) runStage(ctx context.Context, stage ports.Stage, state *ports.RunState) (err error) {
	ctx, span := e.tracer.Start(ctx, "pipeline."+stage.Name(),
		trace.WithAttributes(attribute.String("pipeline.stage", stage.Name())))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage %s panicked: %v", stage.Name(), r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.metrics.RecordStageFailure(ctx, stage.Name())
			e.logger.WarnContext(ctx, "post-join stage failed",
				slog.String("stage", stage.Name()),
				slog.Duration("duration", time.Since(start)),
				slog.String("error", err.Error()),
			)
		}
		span.End()
	}()

	return stage.Process(ctx, state)
}

// Stages returns the stage names in execution order.
func (e *Executor) Stages() []string {
	names := make([]string, len(e.stages))
	for i, s := range e.stages {
		names[i] = s.Name()
	}
	return names
}

// StageFunc adapts a function to ports.Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context, state *ports.RunState) error
}

func (f StageFunc) Name() string { return f.StageName }

func (f StageFunc) Process(ctx context.Context, state *ports.RunState) error {
	return f.Fn(ctx, state)
}

// Ensure Executor implements the interface.
var _ ports.PipelineExecutor = (*Executor)(nil)
