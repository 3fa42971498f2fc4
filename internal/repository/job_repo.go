package repository

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltgrid/backend/internal/models"
)

type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, agent_id, queue_name, payload, priority, status, claimed_by, result, created_at, claimed_at, completed_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.ID, &j.AgentID, &j.QueueName, &j.Payload, &j.Priority, &j.Status,
		&j.ClaimedBy, &j.Result, &j.CreatedAt, &j.ClaimedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *JobRepo) Create(ctx context.Context, j *models.Job) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO jobs (id, agent_id, queue_name, payload, priority, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		RETURNING created_at
	`, j.ID, j.AgentID, j.QueueName, j.Payload, j.Priority).Scan(&j.CreatedAt)
}

func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
}

// ClaimNext atomically transitions the best pending job in the queue
// to processing and binds it to claimer. Candidate selection and the
// status flip happen in one statement; SKIP LOCKED keeps concurrent
// claimers from blocking on the same row, and the outer status guard
// makes the rows-affected count the race-free success signal. Returns
// (nil, nil) when the queue is empty.
func (r *JobRepo) ClaimNext(ctx context.Context, queueName string, claimer uuid.UUID) (*models.Job, error) {
	job, err := scanJob(r.pool.QueryRow(ctx, `
		UPDATE jobs SET status = 'processing', claimed_by = $1, claimed_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE queue_name = $2 AND status = 'pending'
			ORDER BY priority DESC, created_at ASC, id ASC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		) AND status = 'pending'
		RETURNING `+jobColumns+`
	`, claimer, queueName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

// Complete transitions a processing job owned by claimer to the given
// terminal status. Returns false when the conditional update matched
// no row (already terminal, or claimed by someone else).
func (r *JobRepo) Complete(ctx context.Context, id, claimer uuid.UUID, status, result string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE jobs SET status = $3, result = $4, completed_at = now()
		WHERE id = $1 AND status = 'processing' AND claimed_by = $2
	`, id, claimer, status, result)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListFilter narrows List results. Empty fields are ignored; Statuses
// defaults to the active set (pending, processing) in the service.
type ListFilter struct {
	AgentID   *uuid.UUID
	QueueName string
	Statuses  []string
	Limit     int
	Offset    int
}

func (r *JobRepo) List(ctx context.Context, f ListFilter) ([]*models.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE status = ANY($1)`
	args := []any{f.Statuses}
	if f.AgentID != nil {
		args = append(args, *f.AgentID)
		query += ` AND agent_id = $` + strconv.Itoa(len(args))
	}
	if f.QueueName != "" {
		args = append(args, f.QueueName)
		query += ` AND queue_name = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`
	args = append(args, f.Limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, j)
	}
	return list, rows.Err()
}

// CountByAgent returns the agent's job counts keyed by status.
func (r *JobRepo) CountByAgent(ctx context.Context, agentID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM jobs WHERE agent_id = $1 GROUP BY status
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *JobRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = $1`, status).Scan(&n)
	return n, err
}
