package models

import (
	"time"

	"github.com/google/uuid"
)

// Event taxonomy delivered by the webhook dispatcher. The marketplace
// events are raised by the marketplace collaborator but validated and
// delivered here like any other.
const (
	EventMessageReceived = "message.received"
	EventJobCompleted    = "job.completed"
	EventTaskClaimed     = "marketplace.task_claimed"
	EventTaskDelivered   = "marketplace.task_delivered"
	EventTaskReviewed    = "marketplace.task_reviewed"
)

var validEventTypes = map[string]bool{
	EventMessageReceived: true,
	EventJobCompleted:    true,
	EventTaskClaimed:     true,
	EventTaskDelivered:   true,
	EventTaskReviewed:    true,
}

// ValidEventType reports whether t is part of the event taxonomy.
func ValidEventType(t string) bool { return validEventTypes[t] }

type Webhook struct {
	ID         uuid.UUID `json:"webhook_id"`
	AgentID    uuid.UUID `json:"agent_id"`
	URL        string    `json:"url"`
	EventTypes []string  `json:"event_types"`
	Secret     string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}
