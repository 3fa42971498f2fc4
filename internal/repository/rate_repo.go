package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RateRepo keeps one sliding-window row per agent. The window is
// lazily reset by the same upsert that increments it, so stale windows
// are overwritten rather than garbage collected.
type RateRepo struct {
	pool *pgxpool.Pool
}

func NewRateRepo(pool *pgxpool.Pool) *RateRepo {
	return &RateRepo{pool: pool}
}

// Increment bumps the agent's window counter and returns the new
// count. A window that started at or before staleBefore is restarted
// at count=1. The whole increment-and-compare is one conditional
// upsert, which is what keeps concurrent admits for the same agent
// race free.
func (r *RateRepo) Increment(ctx context.Context, agentID uuid.UUID, now, staleBefore time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		INSERT INTO rate_limits (agent_id, window_start, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (agent_id) DO UPDATE SET
			count = CASE WHEN rate_limits.window_start <= $3 THEN 1 ELSE rate_limits.count + 1 END,
			window_start = CASE WHEN rate_limits.window_start <= $3 THEN $2 ELSE rate_limits.window_start END
		RETURNING count
	`, agentID, now, staleBefore).Scan(&count)
	return count, err
}
