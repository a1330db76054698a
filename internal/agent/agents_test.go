package agent

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/testutil"
)

type stubFAQ struct {
	entries []domain.FAQEntry
	err     error
	queries []string
}

func (s *stubFAQ) SearchFAQ(ctx context.Context, query string, limit int) ([]domain.FAQEntry, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	var out []domain.FAQEntry
	for _, e := range s.entries {
		if strings.Contains(e.Question, query) || strings.Contains(e.Answer, query) {
			out = append(out, e)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *stubFAQ) AddFAQ(ctx context.Context, entry *domain.FAQEntry) error {
	s.entries = append(s.entries, *entry)
	return nil
}

func newBuiltins(gw *testutil.ScriptedGateway, faq *stubFAQ) *Registry {
	reg := NewRegistry(nil)
	deps := Deps{Gateway: gw}
	if faq != nil {
		deps.FAQ = faq
	}
	RegisterBuiltins(reg, deps)
	return reg
}

func TestSpecialist_StructuredReply(t *testing.T) {
	gw := testutil.NewScriptedGateway().
		Reply(domain.AgentErrorAnalysis, `{"response": "Restart the app.", "confidence": 0.9, "actions": [{"type": "update_conversation", "payload": {"category": "bug"}}, {"type": "launch_rocket"}]}`, 120, 40)
	reg := newBuiltins(gw, nil)

	out, err := reg.Run(context.Background(), domain.AgentErrorAnalysis, &domain.AgentInput{OriginalMessage: "error 0x80"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.AgentID != domain.AgentErrorAnalysis || out.Content != "Restart the app." || out.Confidence != 0.9 {
		t.Errorf("unexpected output: %+v", out)
	}
	if len(out.Actions) != 1 || out.Actions[0].Type != domain.ActionUpdateConversation {
		t.Errorf("actions = %+v, want only update_conversation", out.Actions)
	}
	if out.TokenInput != 120 || out.TokenOutput != 40 {
		t.Errorf("tokens = %d/%d", out.TokenInput, out.TokenOutput)
	}

	calls := gw.Calls()
	if len(calls) != 1 || calls[0].AgentID != domain.AgentErrorAnalysis {
		t.Fatalf("calls = %+v", calls)
	}
	if !strings.Contains(calls[0].UserMessage, "error 0x80") {
		t.Errorf("prompt missing message: %q", calls[0].UserMessage)
	}
}

func TestSpecialist_PlainTextFallback(t *testing.T) {
	gw := testutil.NewScriptedGateway().Reply(domain.AgentUXFeedback, "  Thanks for the feedback!  ", 10, 5)
	reg := newBuiltins(gw, nil)

	out, err := reg.Run(context.Background(), domain.AgentUXFeedback, &domain.AgentInput{OriginalMessage: "the button is tiny"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Content != "Thanks for the feedback!" || out.Confidence != 0.5 {
		t.Errorf("unexpected output: %+v", out)
	}
}

func TestSpecialist_ConfidenceClamped(t *testing.T) {
	gw := testutil.NewScriptedGateway().Reply(domain.AgentHardwareDiagnosis, `{"response": "ok", "confidence": 7}`, 1, 1)
	reg := newBuiltins(gw, nil)

	out, err := reg.Run(context.Background(), domain.AgentHardwareDiagnosis, &domain.AgentInput{OriginalMessage: "x"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Confidence != 1 {
		t.Errorf("Confidence = %v, want 1", out.Confidence)
	}
}

func TestAgent_GatewayErrorPassedThrough(t *testing.T) {
	upstream := domain.ErrRateLimit("slow down")
	gw := testutil.NewScriptedGateway().Fail(domain.AgentPolicyCompliance, upstream)
	reg := newBuiltins(gw, nil)

	_, err := reg.Run(context.Background(), domain.AgentPolicyCompliance, &domain.AgentInput{OriginalMessage: "refund?"})
	if !errors.Is(err, upstream) {
		t.Errorf("Run() error = %v, want %v", err, upstream)
	}
}

func TestFAQ_HitsRaiseConfidence(t *testing.T) {
	faq := &stubFAQ{entries: []domain.FAQEntry{
		{ID: "faq-1", Question: "How do I reset my password?", Answer: "Use the reset link."},
		{ID: "faq-2", Question: "Where is my delivery?", Answer: "Check the tracking page."},
	}}

	tests := []struct {
		name     string
		message  string
		wantConf float64
		wantHits []string
	}{
		{"with hits", "password", 0.75, []string{"faq-1"}},
		{"without hits", "opening hours", 0.5, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testutil.NewScriptedGateway().Reply(domain.AgentFAQ, "Here is how.", 10, 5)
			reg := newBuiltins(gw, faq)

			out, err := reg.Run(context.Background(), domain.AgentFAQ, &domain.AgentInput{OriginalMessage: tt.message})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if out.Confidence != tt.wantConf {
				t.Errorf("Confidence = %v, want %v", out.Confidence, tt.wantConf)
			}
			hits, _ := out.Metadata["faq_hits"].([]string)
			if len(hits) != len(tt.wantHits) {
				t.Fatalf("faq_hits = %v, want %v", hits, tt.wantHits)
			}
			for i := range hits {
				if hits[i] != tt.wantHits[i] {
					t.Errorf("faq_hits = %v, want %v", hits, tt.wantHits)
				}
			}
		})
	}
}

func TestFAQ_KeywordsSearchedFirst(t *testing.T) {
	faq := &stubFAQ{}
	gw := testutil.NewScriptedGateway().Reply(domain.AgentFAQ, "ok", 1, 1)
	reg := newBuiltins(gw, faq)

	in := &domain.AgentInput{
		OriginalMessage: "my parcel is late",
		Sentiment:       &domain.SentimentResult{Sentiment: domain.SentimentNegative, Urgency: domain.UrgencyMedium, Keywords: []string{"delivery"}},
	}
	if _, err := reg.Run(context.Background(), domain.AgentFAQ, in); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(faq.queries) != 2 || faq.queries[0] != "delivery" || faq.queries[1] != "my parcel is late" {
		t.Errorf("queries = %v", faq.queries)
	}
}

func TestFAQ_StoreErrorDegrades(t *testing.T) {
	faq := &stubFAQ{err: errors.New("db down")}
	gw := testutil.NewScriptedGateway().Reply(domain.AgentFAQ, "General answer.", 1, 1)
	reg := newBuiltins(gw, faq)

	out, err := reg.Run(context.Background(), domain.AgentFAQ, &domain.AgentInput{OriginalMessage: "hello"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Confidence != 0.5 || out.Content != "General answer." {
		t.Errorf("unexpected output: %+v", out)
	}
}

func actionTypes(actions []domain.AgentAction) []domain.ActionType {
	out := make([]domain.ActionType, len(actions))
	for i, a := range actions {
		out[i] = a.Type
	}
	return out
}

func TestTicketing_Actions(t *testing.T) {
	angry := &domain.SentimentResult{Sentiment: domain.SentimentAngry, Urgency: domain.UrgencyHigh, Priority: domain.PriorityHigh}
	calm := &domain.SentimentResult{Sentiment: domain.SentimentNeutral, Urgency: domain.UrgencyLow, Priority: domain.PriorityLow}

	tests := []struct {
		name         string
		content      string
		sentiment    *domain.SentimentResult
		wantTypes    []domain.ActionType
		wantTitle    string
		wantPriority string
	}{
		{
			name:         "angry customer escalates and notifies",
			content:      `{"response": "We opened a ticket.", "confidence": 0.8, "ticket": {"title": "Broken device", "priority": "urgent"}}`,
			sentiment:    angry,
			wantTypes:    []domain.ActionType{domain.ActionCreateTicket, domain.ActionEscalate, domain.ActionNotify},
			wantTitle:    "Broken device",
			wantPriority: "urgent",
		},
		{
			name:         "calm customer only gets a ticket",
			content:      `{"response": "We opened a ticket.", "ticket": {"title": "Question"}}`,
			sentiment:    calm,
			wantTypes:    []domain.ActionType{domain.ActionCreateTicket},
			wantTitle:    "Question",
			wantPriority: "low",
		},
		{
			name:         "notify flag",
			content:      `{"response": "We opened a ticket.", "notify": true}`,
			sentiment:    calm,
			wantTypes:    []domain.ActionType{domain.ActionCreateTicket, domain.ActionNotify},
			wantTitle:    "device will not turn on",
			wantPriority: "low",
		},
		{
			name:         "plain text reply",
			content:      "A ticket has been opened.",
			wantTypes:    []domain.ActionType{domain.ActionCreateTicket},
			wantTitle:    "device will not turn on",
			wantPriority: "medium",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := testutil.NewScriptedGateway().Reply(domain.AgentTicketing, tt.content, 50, 20)
			reg := newBuiltins(gw, nil)

			out, err := reg.Run(context.Background(), domain.AgentTicketing, &domain.AgentInput{
				OriginalMessage: "device will not turn on",
				Sentiment:       tt.sentiment,
			})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			got := actionTypes(out.Actions)
			if len(got) != len(tt.wantTypes) {
				t.Fatalf("action types = %v, want %v", got, tt.wantTypes)
			}
			for i := range got {
				if got[i] != tt.wantTypes[i] {
					t.Errorf("action types = %v, want %v", got, tt.wantTypes)
				}
			}

			payload := out.Actions[0].Payload
			if payload["title"] != tt.wantTitle {
				t.Errorf("title = %v, want %q", payload["title"], tt.wantTitle)
			}
			if payload["priority"] != tt.wantPriority {
				t.Errorf("priority = %v, want %q", payload["priority"], tt.wantPriority)
			}
		})
	}
}

func TestTicketing_LongMessageTitleTruncated(t *testing.T) {
	msg := strings.Repeat("가", 100)
	gw := testutil.NewScriptedGateway().Reply(domain.AgentTicketing, "ok", 1, 1)
	reg := newBuiltins(gw, nil)

	out, err := reg.Run(context.Background(), domain.AgentTicketing, &domain.AgentInput{OriginalMessage: msg})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	title, _ := out.Actions[0].Payload["title"].(string)
	if title != strings.Repeat("가", 60) {
		t.Errorf("title has %d runes, want 60", len([]rune(title)))
	}
}

func TestQAReview_RequiresContext(t *testing.T) {
	gw := testutil.NewScriptedGateway().Reply(domain.AgentQAReview, `{"approved": true}`, 1, 1)
	reg := newBuiltins(gw, nil)

	_, err := reg.Run(context.Background(), domain.AgentQAReview, &domain.AgentInput{OriginalMessage: "x"})
	if !errors.Is(err, errNoReviewContext) {
		t.Fatalf("Run() error = %v, want errNoReviewContext", err)
	}
	if gw.CallsFor(domain.AgentQAReview) != 0 {
		t.Error("gateway should not be called without review context")
	}

	in := &domain.AgentInput{
		OriginalMessage: "x",
		Context: domain.AgentContext{Review: &domain.ReviewContext{
			OriginalContent: "Draft answer",
			OriginalAgentID: domain.AgentFAQ,
		}},
	}
	out, err := reg.Run(context.Background(), domain.AgentQAReview, in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Content != `{"approved": true}` {
		t.Errorf("Content = %q", out.Content)
	}
	if !strings.Contains(gw.Calls()[0].UserMessage, "Draft answer") {
		t.Error("review prompt should contain the draft")
	}
}

func TestReporting_UsesReportContext(t *testing.T) {
	gw := testutil.NewScriptedGateway().Reply(domain.AgentReporting, "Report.", 1, 1)
	reg := newBuiltins(gw, nil)

	in := &domain.AgentInput{
		OriginalMessage: "daily report please",
		Context: domain.AgentContext{Report: &domain.ReportContext{
			Date:  "2026-10-15",
			Usage: []domain.UsageBucket{{AgentID: domain.AggregateAgentID, Calls: 12}},
		}},
	}
	out, err := reg.Run(context.Background(), domain.AgentReporting, in)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Metadata["report_date"] != "2026-10-15" {
		t.Errorf("metadata = %v", out.Metadata)
	}
	if !strings.Contains(gw.Calls()[0].UserMessage, "_all: 12 calls") {
		t.Errorf("prompt = %q", gw.Calls()[0].UserMessage)
	}
}

func TestStructuralAgents_Deterministic(t *testing.T) {
	gw := testutil.NewScriptedGateway().
		Reply(domain.AgentTranslation, `{"translatedText": "hello", "detectedLanguage": "en"}`, 1, 1)
	reg := newBuiltins(gw, nil)

	in := &domain.AgentInput{
		OriginalMessage: "hello",
		History:         []domain.HistoryMessage{{Role: "user", Content: "earlier"}},
	}
	if _, err := reg.Run(context.Background(), domain.AgentTranslation, in); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	call := gw.Calls()[0]
	if call.Temperature == nil || *call.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", call.Temperature)
	}
	if len(call.History) != 0 {
		t.Error("translation should not send history")
	}
}
