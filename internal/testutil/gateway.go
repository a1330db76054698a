package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

// Handler answers one scripted completion.
type Handler func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error)

// ScriptedGateway is a ports.Gateway fake that answers per calling agent.
// Requests from agents without a script fail.
type ScriptedGateway struct {
	mu       sync.Mutex
	handlers map[domain.AgentID]Handler
	calls    []domain.CompletionRequest
}

// NewScriptedGateway returns an empty ScriptedGateway.
func NewScriptedGateway() *ScriptedGateway {
	return &ScriptedGateway{handlers: make(map[domain.AgentID]Handler)}
}

// On scripts the handler used for requests from id.
func (g *ScriptedGateway) On(id domain.AgentID, h Handler) *ScriptedGateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[id] = h
	return g
}

// Reply scripts a fixed successful reply for id.
func (g *ScriptedGateway) Reply(id domain.AgentID, content string, tokenIn, tokenOut int) *ScriptedGateway {
	return g.On(id, func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		return &domain.CompletionResponse{
			Content:     content,
			TokenInput:  tokenIn,
			TokenOutput: tokenOut,
			Model:       "scripted",
		}, nil
	})
}

// Fail scripts a failure for id.
func (g *ScriptedGateway) Fail(id domain.AgentID, err error) *ScriptedGateway {
	return g.On(id, func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		return nil, err
	})
}

// Hang scripts id to block until its context is done.
func (g *ScriptedGateway) Hang(id domain.AgentID) *ScriptedGateway {
	return g.On(id, func(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
}

// Complete implements ports.Gateway.
func (g *ScriptedGateway) Complete(ctx context.Context, req *domain.CompletionRequest) (*domain.CompletionResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, *req)
	h, ok := g.handlers[req.AgentID]
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("no script for agent %q", req.AgentID)
	}
	return h(ctx, req)
}

// Calls returns a copy of every request received so far.
func (g *ScriptedGateway) Calls() []domain.CompletionRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]domain.CompletionRequest, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallsFor returns how many requests id made.
func (g *ScriptedGateway) CallsFor(id domain.AgentID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.AgentID == id {
			n++
		}
	}
	return n
}
