package models

import (
	"time"

	"github.com/google/uuid"
)

// Job status enums. A job only ever moves pending -> processing ->
// {completed, failed}; claimed_by is set exactly once, atomically with
// the pending -> processing transition.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Priority bounds. 10 is most urgent; submissions outside the range
// are clamped, omitted priorities default to PriorityDefault.
const (
	PriorityMin     = 1
	PriorityMax     = 10
	PriorityDefault = 5
)

// MaxPayloadBytes is the upper bound for job, message, and result
// payloads, measured on the plaintext before encryption.
const MaxPayloadBytes = 100 * 1024

const DefaultQueueName = "default"

type Job struct {
	ID          uuid.UUID  `json:"job_id"`
	AgentID     uuid.UUID  `json:"agent_id"`
	QueueName   string     `json:"queue_name"`
	Payload     string     `json:"payload"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	ClaimedBy   *uuid.UUID `json:"claimed_by,omitempty"`
	Result      *string    `json:"result,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ClaimedAt   *time.Time `json:"claimed_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
