package agent

import (
	"context"
	"errors"
	"log/slog"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// Deps are the collaborators the built-in agents need.
type Deps struct {
	Gateway ports.Gateway
	// FAQ is optional; without it the FAQ agent answers without lookups.
	FAQ    ports.FAQStore
	Logger *slog.Logger
}

var errNoGateway = errors.New("no language-model gateway configured")

// deterministic is the temperature for agents whose output is parsed.
var deterministic = 0.0

// RegisterBuiltins registers all ten built-in agents. It must be called once
// per registry.
func RegisterBuiltins(reg *Registry, deps Deps) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	add := func(id domain.AgentID, build func() *llmAgent) {
		reg.Register(id, func(ctx context.Context) (ports.Agent, error) {
			if deps.Gateway == nil {
				return nil, errNoGateway
			}
			a := build()
			a.id = id
			a.gateway = deps.Gateway
			a.logger = logger.With(slog.String("agent_id", string(id)))
			return a, nil
		})
	}

	add(domain.AgentTranslation, func() *llmAgent {
		return &llmAgent{
			system:      translationSystem,
			prepare:     translationPrompt,
			parse:       rawReply(1),
			temperature: &deterministic,
		}
	})
	add(domain.AgentSentiment, func() *llmAgent {
		return &llmAgent{
			system:      sentimentSystem,
			prepare:     sentimentPrompt,
			parse:       rawReply(1),
			temperature: &deterministic,
		}
	})
	add(domain.AgentQAReview, func() *llmAgent {
		return &llmAgent{
			system:      reviewSystem,
			prepare:     reviewPrompt,
			parse:       rawReply(1),
			temperature: &deterministic,
		}
	})

	add(domain.AgentFAQ, func() *llmAgent {
		s := &faqSearcher{store: deps.FAQ, logger: logger}
		return &llmAgent{
			system:      faqSystem,
			prepare:     s.prepare,
			parse:       s.parse,
			withHistory: true,
		}
	})
	add(domain.AgentTicketing, func() *llmAgent {
		return &llmAgent{
			system:      ticketingSystem,
			prepare:     plainPrompt,
			parse:       parseTicketing(logger),
			withHistory: true,
		}
	})

	for _, s := range specialists {
		add(s.id, func() *llmAgent {
			return &llmAgent{
				system:      s.system,
				prepare:     s.prepare,
				parse:       parseSpecialist(s.confidence, logger),
				withHistory: true,
			}
		})
	}
}
