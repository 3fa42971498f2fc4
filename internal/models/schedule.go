package models

import (
	"time"

	"github.com/google/uuid"
)

// ScheduledTask materializes into a queue submission every time its
// 5-field cron expression fires. next_run_at is always the smallest
// future occurrence; disabled tasks are never materialized.
type ScheduledTask struct {
	ID        uuid.UUID  `json:"task_id"`
	AgentID   uuid.UUID  `json:"agent_id"`
	CronExpr  string     `json:"cron_expr"`
	QueueName string     `json:"queue_name"`
	Payload   string     `json:"payload"`
	Priority  int        `json:"priority"`
	Enabled   bool       `json:"enabled"`
	NextRunAt time.Time  `json:"next_run_at"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	RunCount  int        `json:"run_count"`
	CreatedAt time.Time  `json:"created_at"`
}
