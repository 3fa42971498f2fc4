package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltgrid/backend/internal/models"
)

type ScheduleRepo struct {
	pool *pgxpool.Pool
}

func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

const scheduleColumns = `id, agent_id, cron_expr, queue_name, payload, priority, enabled, next_run_at, last_run_at, run_count, created_at`

func scanSchedule(row pgx.Row) (*models.ScheduledTask, error) {
	var t models.ScheduledTask
	err := row.Scan(&t.ID, &t.AgentID, &t.CronExpr, &t.QueueName, &t.Payload, &t.Priority,
		&t.Enabled, &t.NextRunAt, &t.LastRunAt, &t.RunCount, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *ScheduleRepo) Create(ctx context.Context, t *models.ScheduledTask) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO scheduled_tasks (id, agent_id, cron_expr, queue_name, payload, priority, enabled, next_run_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING created_at
	`, t.ID, t.AgentID, t.CronExpr, t.QueueName, t.Payload, t.Priority, t.NextRunAt).Scan(&t.CreatedAt)
}

func (r *ScheduleRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.ScheduledTask, error) {
	return scanSchedule(r.pool.QueryRow(ctx, `SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE id = $1`, id))
}

func (r *ScheduleRepo) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.ScheduledTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM scheduled_tasks WHERE agent_id = $1 ORDER BY created_at DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ScheduledTask
	for rows.Next() {
		t, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// SetEnabled toggles a schedule owned by agentID. Returns false when
// no such schedule exists for that owner.
func (r *ScheduleRepo) SetEnabled(ctx context.Context, id, agentID uuid.UUID, enabled bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks SET enabled = $3 WHERE id = $1 AND agent_id = $2
	`, id, agentID, enabled)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ScheduleRepo) Delete(ctx context.Context, id, agentID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM scheduled_tasks WHERE id = $1 AND agent_id = $2
	`, id, agentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListDue returns enabled schedules whose next_run_at is at or before now.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time) ([]*models.ScheduledTask, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM scheduled_tasks
		WHERE enabled = TRUE AND next_run_at <= $1
		ORDER BY next_run_at ASC
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.ScheduledTask
	for rows.Next() {
		t, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// MarkFired advances next_run_at past the firing just performed and
// records the run.
func (r *ScheduleRepo) MarkFired(ctx context.Context, id uuid.UUID, firedAt, nextRunAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE scheduled_tasks SET last_run_at = $2, next_run_at = $3, run_count = run_count + 1
		WHERE id = $1
	`, id, firedAt, nextRunAt)
	return err
}

func (r *ScheduleRepo) CountEnabled(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_tasks WHERE enabled = TRUE`).Scan(&n)
	return n, err
}

func (r *ScheduleRepo) CountByAgent(ctx context.Context, agentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM scheduled_tasks WHERE agent_id = $1`, agentID).Scan(&n)
	return n, err
}
