// Package agent holds the agent registry and the built-in language-model
// agents. Every agent takes a domain.AgentInput and returns a
// domain.AgentOutput; the orchestrator only ever talks to the Registry.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// Loader builds an agent. It runs on first use of the agent id.
type Loader func(ctx context.Context) (ports.Agent, error)

type entry struct {
	loader Loader
	mu     sync.Mutex
	agent  ports.Agent
}

// get returns the loaded agent, loading it on first call. A failed load is
// not cached, so the next call tries again.
func (e *entry) get(ctx context.Context) (ports.Agent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.agent != nil {
		return e.agent, nil
	}
	a, err := e.loader(ctx)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, fmt.Errorf("loader returned no agent")
	}
	e.agent = a
	return a, nil
}

// Registry maps agent ids to lazily loaded agents. Registration happens at
// startup; lookups are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.AgentID]*entry
	logger  *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		entries: make(map[domain.AgentID]*entry),
		logger:  logger,
	}
}

// Register adds loader for id. Panics on an unknown id, a nil loader or a
// duplicate registration.
func (r *Registry) Register(id domain.AgentID, loader Loader) {
	if !id.Valid() {
		panic(fmt.Sprintf("agent id %q is not a known agent", id))
	}
	if loader == nil {
		panic(fmt.Sprintf("agent %q must have a loader", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		panic(fmt.Sprintf("agent %q already registered", id))
	}
	r.entries[id] = &entry{loader: loader}
}

// IsRegistered reports whether id has a loader.
func (r *Registry) IsRegistered(id domain.AgentID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// ListRegistered returns the registered ids sorted by name.
func (r *Registry) ListRegistered() []domain.AgentID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]domain.AgentID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Name returns the display name of id.
func (r *Registry) Name(id domain.AgentID) string {
	return id.DisplayName()
}

// Get returns the agent for id, loading it if needed.
func (r *Registry) Get(ctx context.Context, id domain.AgentID) (ports.Agent, error) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	if !ok {
		r.logger.Error("agent not registered", slog.String("agent_id", string(id)))
		return nil, &domain.AgentNotFoundError{ID: id}
	}

	a, err := e.get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load agent %s: %w", id, err)
	}
	return a, nil
}

// Run invokes the agent registered for id.
func (r *Registry) Run(ctx context.Context, id domain.AgentID, in *domain.AgentInput) (*domain.AgentOutput, error) {
	a, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.Run(ctx, in)
}
