package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// mockStage is a test helper that records calls and returns a configured error.
type mockStage struct {
	name  string
	err   error
	panics bool
	calls *[]string
}

func (s *mockStage) Name() string { return s.name }

func (s *mockStage) Process(ctx context.Context, state *ports.RunState) error {
	*s.calls = append(*s.calls, s.name)
	if s.panics {
		panic("stage blew up")
	}
	if s.err != nil {
		return s.err
	}
	state.Result.Response += "+" + s.name
	return nil
}

func newState() *ports.RunState {
	return &ports.RunState{
		Input:  &domain.AgentInput{ConversationID: "conv-1"},
		Result: &domain.OrchestratorResult{Response: "base"},
	}
}

func TestExecutor_Empty(t *testing.T) {
	e := NewExecutor(ExecutorConfig{})
	state := newState()

	if failed := e.Run(context.Background(), state); len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}
	if state.Result.Response != "base" {
		t.Errorf("state mutated without stages: %q", state.Result.Response)
	}
}

func TestExecutor_RunsInOrder(t *testing.T) {
	var calls []string
	e := NewExecutor(ExecutorConfig{Stages: []StageConfig{
		{Order: 30, Stage: &mockStage{name: "logs", calls: &calls}},
		{Order: 10, Stage: &mockStage{name: "qa", calls: &calls}},
		{Order: 20, Stage: &mockStage{name: "actions", calls: &calls}},
		{Order: 20, Stage: &mockStage{name: "usage", calls: &calls}},
	}})

	state := newState()
	if failed := e.Run(context.Background(), state); len(failed) != 0 {
		t.Fatalf("unexpected failures: %v", failed)
	}

	want := []string{"qa", "actions", "usage", "logs"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %s, want %s", i, calls[i], want[i])
		}
	}
	if got := e.Stages(); len(got) != 4 || got[0] != "qa" || got[3] != "logs" {
		t.Errorf("Stages() = %v", got)
	}
	if state.Result.Response != "base+qa+actions+usage+logs" {
		t.Errorf("response = %q", state.Result.Response)
	}
}

func TestExecutor_FailuresAreIsolated(t *testing.T) {
	var calls []string
	boom := errors.New("store down")
	e := NewExecutor(ExecutorConfig{Stages: []StageConfig{
		{Order: 1, Stage: &mockStage{name: "qa", calls: &calls}},
		{Order: 2, Stage: &mockStage{name: "actions", err: boom, calls: &calls}},
		{Order: 3, Stage: &mockStage{name: "usage", panics: true, calls: &calls}},
		{Order: 4, Stage: &mockStage{name: "events", calls: &calls}},
	}})

	state := newState()
	failed := e.Run(context.Background(), state)

	if len(calls) != 4 {
		t.Fatalf("calls = %v, want all four stages", calls)
	}
	if len(failed) != 2 {
		t.Fatalf("failed = %v, want 2", failed)
	}
	if failed[0].Stage != "actions" || !errors.Is(failed[0].Err, boom) {
		t.Errorf("failed[0] = %+v", failed[0])
	}
	if failed[1].Stage != "usage" || failed[1].Err == nil {
		t.Errorf("failed[1] = %+v, want recovered panic", failed[1])
	}
	if len(state.FailedStages) != 2 || state.FailedStages[0] != "actions" || state.FailedStages[1] != "usage" {
		t.Errorf("FailedStages = %v", state.FailedStages)
	}
	if state.Result.Response != "base+qa+events" {
		t.Errorf("response = %q", state.Result.Response)
	}
}

func TestExecutor_SkipsNilStages(t *testing.T) {
	var calls []string
	e := NewExecutor(ExecutorConfig{Stages: []StageConfig{
		{Order: 1, Stage: nil},
		{Order: 2, Stage: &mockStage{name: "qa", calls: &calls}},
	}})
	e.Run(context.Background(), newState())
	if len(calls) != 1 {
		t.Errorf("calls = %v", calls)
	}
}

func TestStageFunc(t *testing.T) {
	called := false
	s := StageFunc{StageName: "events", Fn: func(ctx context.Context, state *ports.RunState) error {
		called = true
		return nil
	}}
	if s.Name() != "events" {
		t.Errorf("Name() = %s", s.Name())
	}
	if err := s.Process(context.Background(), newState()); err != nil || !called {
		t.Errorf("Process err=%v called=%v", err, called)
	}
}
