package models

import (
	"time"

	"github.com/google/uuid"
)

const DefaultChannel = "direct"

// Message is a relay message. Live WebSocket push is best effort; the
// stored row consumed via inbox pull is the authoritative copy.
type Message struct {
	ID        uuid.UUID  `json:"message_id"`
	FromAgent uuid.UUID  `json:"from_agent"`
	ToAgent   uuid.UUID  `json:"to_agent"`
	Channel   string     `json:"channel"`
	Payload   string     `json:"payload"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
