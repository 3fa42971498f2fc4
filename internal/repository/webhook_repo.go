package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltgrid/backend/internal/models"
)

type WebhookRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookRepo(pool *pgxpool.Pool) *WebhookRepo {
	return &WebhookRepo{pool: pool}
}

func (r *WebhookRepo) Create(ctx context.Context, wh *models.Webhook) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO webhooks (id, agent_id, url, event_types, secret, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING created_at
	`, wh.ID, wh.AgentID, wh.URL, wh.EventTypes, wh.Secret).Scan(&wh.CreatedAt)
}

func (r *WebhookRepo) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.Webhook, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, url, event_types, secret, active, created_at
		FROM webhooks WHERE agent_id = $1 ORDER BY created_at DESC
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Webhook
	for rows.Next() {
		var wh models.Webhook
		if err := rows.Scan(&wh.ID, &wh.AgentID, &wh.URL, &wh.EventTypes, &wh.Secret, &wh.Active, &wh.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &wh)
	}
	return list, rows.Err()
}

func (r *WebhookRepo) Delete(ctx context.Context, id, agentID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM webhooks WHERE id = $1 AND agent_id = $2
	`, id, agentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveForEvent returns the agent's active subscriptions whose
// event_types contain eventType.
func (r *WebhookRepo) ListActiveForEvent(ctx context.Context, agentID uuid.UUID, eventType string) ([]*models.Webhook, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, agent_id, url, event_types, secret, active, created_at
		FROM webhooks
		WHERE agent_id = $1 AND active = TRUE AND $2 = ANY(event_types)
	`, agentID, eventType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Webhook
	for rows.Next() {
		var wh models.Webhook
		if err := rows.Scan(&wh.ID, &wh.AgentID, &wh.URL, &wh.EventTypes, &wh.Secret, &wh.Active, &wh.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &wh)
	}
	return list, rows.Err()
}

func (r *WebhookRepo) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhooks WHERE active = TRUE`).Scan(&n)
	return n, err
}

func (r *WebhookRepo) CountByAgent(ctx context.Context, agentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM webhooks WHERE agent_id = $1 AND active = TRUE`).Scan(&n)
	return n, err
}
