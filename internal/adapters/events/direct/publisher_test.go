package direct

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

func testEvent() *domain.LifecycleEvent {
	return &domain.LifecycleEvent{
		ID:             "evt-1",
		Type:           domain.LifecycleTicketCreated,
		ConversationID: "conv-1",
		Timestamp:      time.Now(),
		Data:           map[string]string{"ticket_number": "TK-20261015-0001"},
	}
}

func TestPublish_LogsEvent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	publisher := NewPublisher(logger)
	if err := publisher.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{`"type":"ticket.created"`, `"conversation_id":"conv-1"`, "TK-20261015-0001"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestPublish_CallsHandlersInOrder(t *testing.T) {
	var order []string
	publisher := NewPublisher(nil, func(ctx context.Context, e *domain.LifecycleEvent) error {
		order = append(order, "first")
		return nil
	})
	publisher.Subscribe(func(ctx context.Context, e *domain.LifecycleEvent) error {
		order = append(order, "second:"+e.ID)
		return nil
	})

	if err := publisher.Publish(context.Background(), testEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second:evt-1" {
		t.Errorf("handler order = %v", order)
	}
}

func TestPublish_HandlerErrorDoesNotSkipOthers(t *testing.T) {
	boom := errors.New("boom")
	called := false
	publisher := NewPublisher(nil,
		func(ctx context.Context, e *domain.LifecycleEvent) error { return boom },
		func(ctx context.Context, e *domain.LifecycleEvent) error { called = true; return nil },
	)

	err := publisher.Publish(context.Background(), testEvent())
	if !errors.Is(err, boom) {
		t.Errorf("Publish error = %v, want boom", err)
	}
	if !called {
		t.Error("second handler was skipped")
	}
}

func TestPublish_NilEvent(t *testing.T) {
	if err := NewPublisher(nil).Publish(context.Background(), nil); err == nil {
		t.Error("expected error for nil event")
	}
}

func TestClose(t *testing.T) {
	publisher := NewPublisher(nil)
	if err := publisher.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := publisher.Publish(context.Background(), testEvent()); err == nil {
		t.Error("expected error after Close")
	}
}
