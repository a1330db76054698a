package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

const faqSystem = `You are the general customer support agent. Answer common questions clearly and politely.
When FAQ entries are provided, base your answer on them and do not invent policies.` + specialistFormat

const (
	faqLimit          = 3
	faqConfidence     = 0.5
	faqConfidenceHits = 0.75
)

// faqSearcher looks up FAQ entries for a message.
type faqSearcher struct {
	store  ports.FAQStore
	logger *slog.Logger
}

// search queries the store with the sentiment keywords first and the whole
// message last, keeping the first faqLimit distinct entries. Store errors
// degrade to no hits.
func (s *faqSearcher) search(ctx context.Context, in *domain.AgentInput) []domain.FAQEntry {
	if s.store == nil {
		return nil
	}

	var queries []string
	if in.Sentiment != nil {
		queries = append(queries, in.Sentiment.Keywords...)
	}
	queries = append(queries, in.Message())

	seen := make(map[string]bool)
	var hits []domain.FAQEntry
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		entries, err := s.store.SearchFAQ(ctx, q, faqLimit)
		if err != nil {
			s.logger.Warn("faq search failed", slog.String("error", err.Error()))
			return hits
		}
		for _, e := range entries {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			hits = append(hits, e)
			if len(hits) == faqLimit {
				return hits
			}
		}
	}
	return hits
}

func (s *faqSearcher) prepare(ctx context.Context, in *domain.AgentInput) (string, map[string]any, error) {
	hits := s.search(ctx, in)

	var b strings.Builder
	b.WriteString(messageContext(in))
	if len(hits) > 0 {
		b.WriteString("\nRelevant FAQ entries:\n")
		for i, h := range hits {
			fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n", i+1, h.Question, h.Answer)
		}
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return b.String(), map[string]any{"faq_hits": ids}, nil
}

// parse raises the fallback confidence when the answer is grounded on FAQ hits.
func (s *faqSearcher) parse(content string, in *domain.AgentInput, meta map[string]any) reply {
	confidence := faqConfidence
	if ids, _ := meta["faq_hits"].([]string); len(ids) > 0 {
		confidence = faqConfidenceHits
	}
	return parseSpecialist(confidence, s.logger)(content, in, meta)
}
