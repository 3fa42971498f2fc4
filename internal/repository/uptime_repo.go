package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltgrid/backend/internal/models"
)

type UptimeRepo struct {
	pool *pgxpool.Pool
}

func NewUptimeRepo(pool *pgxpool.Pool) *UptimeRepo {
	return &UptimeRepo{pool: pool}
}

func (r *UptimeRepo) Record(ctx context.Context, check models.UptimeCheck) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO uptime_checks (checked_at, status, response_ms)
		VALUES ($1, $2, $3)
	`, check.CheckedAt, check.Status, check.ResponseMs)
	return err
}

// Aggregate derives the SLA numbers for checks taken since the given
// time. Gaps in the series just mean fewer samples in the window.
func (r *UptimeRepo) Aggregate(ctx context.Context, since time.Time) (total, success int, avgMs float64, err error) {
	err = r.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'ok'),
		       COALESCE(AVG(response_ms), 0)
		FROM uptime_checks WHERE checked_at >= $1
	`, since).Scan(&total, &success, &avgMs)
	return total, success, avgMs, err
}
