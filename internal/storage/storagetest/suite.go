// Package storagetest holds behaviour tests shared by every
// ports.StorageProvider implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
	"github.com/infohyun/aramcrm-sub000/internal/core/ports"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) ports.StorageProvider

// Run runs the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s ports.StorageProvider)
	}{
		{"AgentConfigs", testAgentConfigs},
		{"FAQ", testFAQ},
		{"Tickets", testTickets},
		{"NumberedTickets", testNumberedTickets},
		{"Conversations", testConversations},
		{"Notifications", testNotifications},
		{"Usage", testUsage},
		{"AgentLogs", testAgentLogs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			defer s.Close()
			tt.fn(t, s)
		})
	}
}

func strPtr(s string) *string { return &s }

func testAgentConfigs(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()

	cfgs, err := s.ListAgentConfigs(ctx)
	if err != nil {
		t.Fatalf("ListAgentConfigs() error = %v", err)
	}
	if len(cfgs) != 0 {
		t.Fatalf("new store has %d configs", len(cfgs))
	}

	if err := s.SetAgentEnabled(ctx, domain.AgentUXFeedback, false); err != nil {
		t.Fatalf("SetAgentEnabled() error = %v", err)
	}
	if err := s.SetAgentEnabled(ctx, domain.AgentFAQ, true); err != nil {
		t.Fatalf("SetAgentEnabled() error = %v", err)
	}
	if err := s.SetAgentEnabled(ctx, domain.AgentUXFeedback, true); err != nil {
		t.Fatalf("SetAgentEnabled() toggle error = %v", err)
	}

	cfgs, err = s.ListAgentConfigs(ctx)
	if err != nil {
		t.Fatalf("ListAgentConfigs() error = %v", err)
	}
	if len(cfgs) != 2 {
		t.Fatalf("ListAgentConfigs() = %+v, want 2 rows", cfgs)
	}
	for _, c := range cfgs {
		if !c.Enabled {
			t.Errorf("%s should be enabled", c.AgentID)
		}
	}
}

func testFAQ(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()

	entries := []*domain.FAQEntry{
		{ID: "faq-1", Question: "How do I reset my Password?", Answer: "Use the reset link.", Category: "account"},
		{ID: "faq-2", Question: "배송은 얼마나 걸리나요?", Answer: "보통 2~3일 걸립니다.", Category: "delivery"},
		{ID: "faq-3", Question: "Can I change my password twice a day?", Answer: "Yes."},
	}
	for _, e := range entries {
		if err := s.AddFAQ(ctx, e); err != nil {
			t.Fatalf("AddFAQ() error = %v", err)
		}
	}

	generated := &domain.FAQEntry{Question: "Opening hours?", Answer: "9 to 6."}
	if err := s.AddFAQ(ctx, generated); err != nil {
		t.Fatalf("AddFAQ() error = %v", err)
	}
	if generated.ID == "" {
		t.Error("AddFAQ() should assign an id")
	}

	got, err := s.SearchFAQ(ctx, "password", 10)
	if err != nil {
		t.Fatalf("SearchFAQ() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "faq-1" || got[1].ID != "faq-3" {
		t.Errorf("SearchFAQ(password) = %+v", got)
	}

	got, err = s.SearchFAQ(ctx, "배송", 10)
	if err != nil {
		t.Fatalf("SearchFAQ() error = %v", err)
	}
	if len(got) != 1 || got[0].Category != "delivery" {
		t.Errorf("SearchFAQ(배송) = %+v", got)
	}

	got, err = s.SearchFAQ(ctx, "password", 1)
	if err != nil {
		t.Fatalf("SearchFAQ() error = %v", err)
	}
	if len(got) != 1 {
		t.Errorf("SearchFAQ() limit ignored: %d results", len(got))
	}

	got, err = s.SearchFAQ(ctx, "   ", 10)
	if err != nil || len(got) != 0 {
		t.Errorf("SearchFAQ(blank) = %+v, %v", got, err)
	}
}

func testTickets(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()

	n, err := s.CountTickets(ctx)
	if err != nil || n != 0 {
		t.Fatalf("CountTickets() = %d, %v", n, err)
	}

	ticket := &domain.Ticket{
		Number:         "TK-20261015-0001",
		ConversationID: "conv-1",
		Title:          "Device broken",
		Status:         domain.TicketOpen,
		Priority:       string(domain.PriorityHigh),
	}
	if err := s.CreateTicket(ctx, ticket); err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}
	if ticket.ID == "" {
		t.Fatal("CreateTicket() should assign an id")
	}

	n, err = s.CountTickets(ctx)
	if err != nil || n != 1 {
		t.Fatalf("CountTickets() = %d, %v, want 1", n, err)
	}

	if err := s.UpdateTicket(ctx, ticket.ID, domain.TicketUpdate{Status: strPtr(domain.TicketInProgress), Memo: strPtr("called back")}); err != nil {
		t.Fatalf("UpdateTicket() error = %v", err)
	}
	got, err := s.GetTicket(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("GetTicket() error = %v", err)
	}
	if got.Status != domain.TicketInProgress || got.Memo != "called back" || got.Priority != "high" {
		t.Errorf("GetTicket() = %+v", got)
	}

	if err := s.UpdateTicket(ctx, ticket.ID, domain.TicketUpdate{}); err != nil {
		t.Errorf("empty UpdateTicket() error = %v", err)
	}
	if err := s.UpdateTicket(ctx, "missing", domain.TicketUpdate{Status: strPtr("closed")}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateTicket(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTicket(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetTicket(missing) error = %v, want ErrNotFound", err)
	}

	dup := &domain.Ticket{Number: ticket.Number, Title: "dup", Status: domain.TicketOpen, Priority: "low"}
	if err := s.CreateTicket(ctx, dup); err == nil {
		t.Error("duplicate ticket number should fail")
	}
}

func testNumberedTickets(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()
	number := func(seq int) string { return fmt.Sprintf("N-%04d", seq) }

	if err := s.CreateTicket(ctx, &domain.Ticket{Number: number(1), Title: "first", Status: domain.TicketOpen, Priority: "low"}); err != nil {
		t.Fatalf("CreateTicket() error = %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	numbers := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk := &domain.Ticket{Title: "concurrent", Status: domain.TicketOpen, Priority: "high"}
			if err := s.CreateNumberedTicket(ctx, tk, number); err != nil {
				errs <- err
				return
			}
			numbers <- tk.Number
		}()
	}
	wg.Wait()
	close(errs)
	close(numbers)

	for err := range errs {
		t.Errorf("CreateNumberedTicket() error = %v", err)
	}
	seen := map[string]bool{number(1): true}
	for num := range numbers {
		if seen[num] {
			t.Errorf("number %s assigned twice", num)
		}
		seen[num] = true
	}
	if got, err := s.CountTickets(ctx); err != nil || got != n+1 {
		t.Errorf("CountTickets() = %d, %v, want %d", got, err, n+1)
	}
}

func testConversations(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()

	conv := &domain.Conversation{ID: "conv-1", CustomerID: "cust-1"}
	if err := s.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}

	if err := s.UpdateConversation(ctx, "conv-1", domain.ConversationUpdate{
		Language:  strPtr("en"),
		Sentiment: strPtr("angry"),
	}); err != nil {
		t.Fatalf("UpdateConversation() error = %v", err)
	}

	// A second create must not reset the row.
	if err := s.CreateConversation(ctx, &domain.Conversation{ID: "conv-1"}); err != nil {
		t.Fatalf("CreateConversation() again error = %v", err)
	}

	got, err := s.GetConversation(ctx, "conv-1")
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.Status != domain.ConversationOpen || got.Language != "en" || got.Sentiment != "angry" || got.CustomerID != "cust-1" {
		t.Errorf("GetConversation() = %+v", got)
	}
	if got.Category != "" || got.TicketID != "" {
		t.Errorf("untouched fields changed: %+v", got)
	}

	if err := s.UpdateConversation(ctx, "missing", domain.ConversationUpdate{Status: strPtr("escalated")}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("UpdateConversation(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetConversation(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetConversation(missing) error = %v, want ErrNotFound", err)
	}
}

func testNotifications(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	for i, n := range []*domain.Notification{
		{UserID: "u1", Type: "agent", Title: "first", CreatedAt: base},
		{UserID: "u2", Type: "agent", Title: "other", CreatedAt: base.Add(time.Second)},
		{UserID: "u1", Type: "agent", Title: "second", Link: "/conversations/c1", CreatedAt: base.Add(2 * time.Second)},
	} {
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatalf("CreateNotification(%d) error = %v", i, err)
		}
	}

	got, err := s.ListNotifications(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("ListNotifications() error = %v", err)
	}
	if len(got) != 2 || got[0].Title != "second" || got[1].Title != "first" {
		t.Fatalf("ListNotifications() = %+v", got)
	}
	if got[0].Link != "/conversations/c1" || got[0].Read {
		t.Errorf("notification = %+v", got[0])
	}
}

func testUsage(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()
	const day = "2026-10-15"

	deltas := []domain.UsageDelta{
		{Calls: 1, TokenInput: 100, TokenOutput: 50, Messages: 1, Conversations: 1, EstimatedCostUSD: 0.001},
		{Calls: 1, TokenInput: 30, TokenOutput: 20, Messages: 1, EstimatedCostUSD: 0.0005},
	}
	for _, d := range deltas {
		if err := s.UpsertUsage(ctx, day, domain.AggregateAgentID, d); err != nil {
			t.Fatalf("UpsertUsage() error = %v", err)
		}
	}
	if err := s.UpsertUsage(ctx, day, domain.AgentFAQ, deltas[0]); err != nil {
		t.Fatalf("UpsertUsage() error = %v", err)
	}
	if err := s.UpsertUsage(ctx, "2026-10-14", domain.AgentFAQ, deltas[1]); err != nil {
		t.Fatalf("UpsertUsage() error = %v", err)
	}

	got, err := s.GetUsage(ctx, day)
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetUsage() = %+v, want 2 buckets", got)
	}

	var all *domain.UsageBucket
	for i := range got {
		if got[i].AgentID == domain.AggregateAgentID {
			all = &got[i]
		}
	}
	if all == nil {
		t.Fatal("aggregate bucket missing")
	}
	if all.Calls != 2 || all.TokenInput != 130 || all.TokenOutput != 70 || all.Messages != 2 || all.Conversations != 1 {
		t.Errorf("aggregate bucket = %+v", all)
	}
	if all.EstimatedCostUSD < 0.00149 || all.EstimatedCostUSD > 0.00151 {
		t.Errorf("aggregate cost = %v, want 0.0015", all.EstimatedCostUSD)
	}
	if all.Date != day {
		t.Errorf("Date = %q", all.Date)
	}
}

func testAgentLogs(t *testing.T, s ports.StorageProvider) {
	ctx := context.Background()
	at := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	batch := []domain.AgentLogEntry{
		{ConversationID: "conv-1", AgentID: domain.AgentTranslation, AgentName: "Translation", Action: "translate", CreatedAt: at},
		{ConversationID: "conv-1", AgentID: domain.AgentSentiment, AgentName: "Sentiment Analysis", Action: "analyze_sentiment", CreatedAt: at},
		{ConversationID: "conv-1", AgentID: domain.AgentFAQ, AgentName: "FAQ", Action: "respond", Confidence: 0.75, TokenInput: 10, TokenOutput: 5, Output: strings.Repeat("a", 300), CreatedAt: at},
		{ConversationID: "conv-2", AgentID: domain.AgentFAQ, AgentName: "FAQ", Action: "respond", Error: "timeout", CreatedAt: at},
	}
	if err := s.AppendAgentLogs(ctx, batch); err != nil {
		t.Fatalf("AppendAgentLogs() error = %v", err)
	}
	if err := s.AppendAgentLogs(ctx, nil); err != nil {
		t.Fatalf("AppendAgentLogs(nil) error = %v", err)
	}

	got, err := s.ListAgentLogs(ctx, "conv-1", ports.LogListOptions{})
	if err != nil {
		t.Fatalf("ListAgentLogs() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListAgentLogs() returned %d entries, want 3", len(got))
	}
	wantOrder := []domain.AgentID{domain.AgentTranslation, domain.AgentSentiment, domain.AgentFAQ}
	for i, id := range wantOrder {
		if got[i].AgentID != id {
			t.Errorf("entry %d = %s, want %s", i, got[i].AgentID, id)
		}
		if got[i].ID == "" {
			t.Errorf("entry %d has no id", i)
		}
	}
	if n := len([]rune(got[2].Output)); n != domain.MaxLogExcerpt {
		t.Errorf("output excerpt has %d runes, want %d", n, domain.MaxLogExcerpt)
	}
	if got[2].Confidence != 0.75 || got[2].TokenInput != 10 {
		t.Errorf("entry = %+v", got[2])
	}

	page, err := s.ListAgentLogs(ctx, "conv-1", ports.LogListOptions{Limit: 1, Offset: 1})
	if err != nil {
		t.Fatalf("ListAgentLogs() page error = %v", err)
	}
	if len(page) != 1 || page[0].AgentID != domain.AgentSentiment {
		t.Errorf("page = %+v", page)
	}

	failed, err := s.ListAgentLogs(ctx, "conv-2", ports.LogListOptions{})
	if err != nil {
		t.Fatalf("ListAgentLogs() error = %v", err)
	}
	if len(failed) != 1 || failed[0].Error != "timeout" {
		t.Errorf("failed entries = %+v", failed)
	}
}
