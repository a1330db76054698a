package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/infohyun/aramcrm-sub000/internal/core/domain"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublish_KeysByConversation(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisherWithWriter(w)

	event := &domain.LifecycleEvent{
		ID:             "evt-1",
		Type:           domain.LifecycleOrchestrationCompleted,
		ConversationID: "conv-9",
		Timestamp:      time.Date(2026, 10, 15, 10, 30, 0, 0, time.UTC),
		Data:           domain.OrchestrationCompletedData{AgentID: domain.AgentFAQ, Actions: 2},
	}
	if err := p.Publish(context.Background(), event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if len(w.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "conv-9" {
		t.Errorf("key = %q, want conv-9", msg.Key)
	}
	if !msg.Time.Equal(event.Timestamp) {
		t.Errorf("time = %v, want %v", msg.Time, event.Timestamp)
	}

	var decoded struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			AgentID string `json:"agent_id"`
			Actions int    `json:"actions"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if decoded.Type != "orchestration.completed" || decoded.Data.AgentID != "team-3" || decoded.Data.Actions != 2 {
		t.Errorf("decoded = %+v", decoded)
	}

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	if headers["event-type"] != "orchestration.completed" || headers["event-id"] != "evt-1" {
		t.Errorf("headers = %v", headers)
	}
}

func TestPublish_WriteError(t *testing.T) {
	boom := errors.New("broker down")
	p := NewPublisherWithWriter(&fakeWriter{err: boom})

	err := p.Publish(context.Background(), &domain.LifecycleEvent{Type: domain.LifecycleTicketCreated})
	if !errors.Is(err, boom) {
		t.Errorf("Publish error = %v, want wrapped broker error", err)
	}
}

func TestPublish_NilEvent(t *testing.T) {
	w := &fakeWriter{}
	if err := NewPublisherWithWriter(w).Publish(context.Background(), nil); err == nil {
		t.Error("expected error for nil event")
	}
	if len(w.msgs) != 0 {
		t.Error("nil event must not be written")
	}
}

func TestNewPublisher_Validation(t *testing.T) {
	if _, err := NewPublisher(nil, "events"); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewPublisher([]string{"localhost:9092"}, ""); err == nil {
		t.Error("expected error without topic")
	}
	p, err := NewPublisher([]string{"localhost:9092"}, "events")
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	if err := NewPublisherWithWriter(w).Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !w.closed {
		t.Error("writer not closed")
	}
}
