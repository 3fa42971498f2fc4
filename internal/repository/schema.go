package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the application DDL, applied idempotently at startup.
// River's own tables are handled separately by rivermigrate.
const schema = `
CREATE TABLE IF NOT EXISTS agents (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	credits INTEGER NOT NULL DEFAULT 100 CHECK (credits >= 0),
	reputation DOUBLE PRECISION NOT NULL DEFAULT 5.0,
	available BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS api_keys (
	id UUID PRIMARY KEY,
	agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	key_hash TEXT NOT NULL UNIQUE,
	key_prefix TEXT NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id UUID PRIMARY KEY,
	agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	queue_name TEXT NOT NULL DEFAULT 'default',
	payload TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 5,
	status TEXT NOT NULL DEFAULT 'pending',
	claimed_by UUID,
	result TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	claimed_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_jobs_claim ON jobs (queue_name, status, priority DESC, created_at);

CREATE TABLE IF NOT EXISTS scheduled_tasks (
	id UUID PRIMARY KEY,
	agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	cron_expr TEXT NOT NULL,
	queue_name TEXT NOT NULL DEFAULT 'default',
	payload TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 5,
	enabled BOOLEAN NOT NULL DEFAULT TRUE,
	next_run_at TIMESTAMPTZ NOT NULL,
	last_run_at TIMESTAMPTZ,
	run_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_scheduled_tasks_due ON scheduled_tasks (enabled, next_run_at);

CREATE TABLE IF NOT EXISTS messages (
	id UUID PRIMARY KEY,
	from_agent UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	to_agent UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	channel TEXT NOT NULL DEFAULT 'direct',
	payload TEXT NOT NULL,
	read_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_messages_inbox ON messages (to_agent, read_at, created_at DESC);

CREATE TABLE IF NOT EXISTS webhooks (
	id UUID PRIMARY KEY,
	agent_id UUID NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
	url TEXT NOT NULL,
	event_types TEXT[] NOT NULL,
	secret TEXT NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS rate_limits (
	agent_id UUID PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
	window_start TIMESTAMPTZ NOT NULL,
	count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS uptime_checks (
	checked_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	status TEXT NOT NULL,
	response_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uptime_checked_at ON uptime_checks (checked_at);
`

// EnsureSchema applies the application DDL.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
