package agent

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

const ticketingSystem = `You are the ticketing agent. You handle complaints and issues that need follow-up by staff.
Tell the customer a service ticket is being opened and what happens next.
Answer with a single JSON object and nothing else:
{"response": "<reply to the customer>", "confidence": <0..1>, "ticket": {"title": "...", "description": "...", "priority": "low|medium|high|urgent", "category": "..."}, "notify": true|false}`

const (
	ticketingConfidence = 0.7
	ticketTitleRunes    = 60
)

type ticketingJSON struct {
	Response   string   `json:"response"`
	Confidence *float64 `json:"confidence"`
	Ticket     *struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Priority    string `json:"priority"`
		Category    string `json:"category"`
	} `json:"ticket"`
	Notify bool `json:"notify"`
}

// parseTicketing always requests a ticket. Severe sentiment also escalates
// the conversation and notifies staff.
func parseTicketing(logger *slog.Logger) parseFunc {
	return func(content string, in *domain.AgentInput, _ map[string]any) reply {
		r := reply{Content: strings.TrimSpace(content), Confidence: ticketingConfidence}

		title := truncateRunes(in.Message(), ticketTitleRunes)
		description := in.Message()
		priority := domain.PriorityMedium
		if in.Sentiment != nil {
			priority = in.Sentiment.Priority
		}
		category := ""
		notify := false

		if v, ok := DecodeObject[ticketingJSON](content); ok && strings.TrimSpace(v.Response) != "" {
			r.Content = v.Response
			if v.Confidence != nil {
				r.Confidence = *v.Confidence
			}
			if t := v.Ticket; t != nil {
				if t.Title != "" {
					title = t.Title
				}
				if t.Description != "" {
					description = t.Description
				}
				if p := domain.Priority(t.Priority); p.Valid() {
					priority = p
				}
				category = t.Category
			}
			notify = v.Notify
		} else {
			logger.Debug("ticketing reply was not JSON, using message for the ticket")
		}

		r.Actions = append(r.Actions, domain.AgentAction{
			Type: domain.ActionCreateTicket,
			Payload: map[string]any{
				"title":       title,
				"description": description,
				"priority":    string(priority),
				"category":    category,
			},
		})

		severe := in.Sentiment.IsSevere()
		if severe {
			r.Actions = append(r.Actions, domain.AgentAction{
				Type: domain.ActionEscalate,
				Payload: map[string]any{
					"reason": "customer sentiment " + string(in.Sentiment.Sentiment) + ", urgency " + string(in.Sentiment.Urgency),
				},
			})
		}
		if notify || severe {
			r.Actions = append(r.Actions, domain.AgentAction{
				Type: domain.ActionNotify,
				Payload: map[string]any{
					"title":   "Ticket opened: " + title,
					"message": truncateRunes(description, domain.MaxLogExcerpt),
				},
			})
		}
		return r
	}
}

func truncateRunes(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
