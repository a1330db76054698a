package domain

import (
	"time"
)

// LifecycleEvent is a high-level event published to an event bus for
// decoupled consumers (analytics, notification fan-out).
type LifecycleEvent struct {
	ID             string             `json:"id"`
	Type           LifecycleEventType `json:"type"`
	ConversationID string             `json:"conversation_id"`
	MessageID      string             `json:"message_id,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
	Data           any                `json:"data"`
}

// LifecycleEventType identifies the type of lifecycle event.
type LifecycleEventType string

const (
	LifecycleOrchestrationCompleted LifecycleEventType = "orchestration.completed"
	LifecycleNotificationCreated    LifecycleEventType = "notification.created"
	LifecycleTicketCreated          LifecycleEventType = "ticket.created"
)

// OrchestrationCompletedData is the payload of orchestration.completed events.
type OrchestrationCompletedData struct {
	AgentID      AgentID       `json:"agent_id"`
	Category     string        `json:"category,omitempty"`
	Language     string        `json:"language,omitempty"`
	Sentiment    Sentiment     `json:"sentiment,omitempty"`
	Actions      int           `json:"actions"`
	TokenUsage   TokenUsage    `json:"token_usage"`
	Duration     time.Duration `json:"duration_ns"`
	FailedStages int           `json:"failed_stages"`
}
