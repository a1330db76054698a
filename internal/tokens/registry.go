// Package tokens estimates token counts and costs for language-model calls.
package tokens

import (
	"log/slog"
	"strings"
)

// Counter counts tokens for the models it supports.
type Counter interface {
	CountText(model, text string) (int, error)
	SupportsModel(model string) bool
}

// Registry picks a Counter per model and falls back to the heuristic
// estimator for unknown models.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a new token counter registry.
func NewRegistry() *Registry {
	return &Registry{
		fallback: HeuristicCounter{},
	}
}

// NewDefaultRegistry returns a registry with the tiktoken counter registered.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewTiktokenCounter())
	return r
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// GetCounter returns the appropriate counter for a model.
func (r *Registry) GetCounter(model string) Counter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

// Count returns the token count of text for model. It never fails: a counter
// error falls back to Estimate.
func (r *Registry) Count(model, text string) int {
	n, err := r.GetCounter(model).CountText(model, text)
	if err != nil {
		slog.Default().Warn("token count failed, using estimate",
			slog.String("model", model),
			slog.String("error", err.Error()))
		return Estimate(text)
	}
	return n
}

// HeuristicCounter counts with Estimate and supports every model.
type HeuristicCounter struct{}

func (HeuristicCounter) CountText(_, text string) (int, error) {
	return Estimate(text), nil
}

func (HeuristicCounter) SupportsModel(string) bool { return true }

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern.
func (m *ModelMatcher) Matches(model string) bool {
	for _, e := range m.exact {
		if model == e {
			return true
		}
	}

	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}

	return false
}
