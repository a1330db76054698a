package ports

import (
	"context"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// RunState is the state of one orchestration run after the specialist join.
// Post-join stages read it and may enrich Result; they run one at a time, so
// no locking is needed.
type RunState struct {
	// Input is the enriched agent input shared by every stage.
	Input *domain.AgentInput
	// Primary is the selected specialist output, nil when every specialist failed.
	Primary *domain.AgentOutput
	// Result is the caller-facing result being assembled.
	Result *domain.OrchestratorResult
	// StartedAt is when the run began.
	StartedAt time.Time
	// FailedStages names the post-join stages that have failed so far.
	FailedStages []string
}

// AppendLog appends a stage attempt to the run's agent log and token usage.
func (s *RunState) AppendLog(entry domain.AgentLogEntry) {
	s.Result.AgentLogs = append(s.Result.AgentLogs, entry)
	s.Result.TokenUsage.Input += entry.TokenInput
	s.Result.TokenUsage.Output += entry.TokenOutput
}

// Stage runs after the specialist join.
type Stage interface {
	// Name returns the unique identifier for this stage.
	Name() string
	// Process executes the stage. A returned error is logged by the executor
	// and never stops the following stages.
	Process(ctx context.Context, state *RunState) error
}

// StageError records a failed post-join stage.
type StageError struct {
	Stage string
	Err   error
}

// PipelineExecutor runs the ordered post-join stages.
type PipelineExecutor interface {
	Run(ctx context.Context, state *RunState) []StageError
}
