package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltgrid/backend/internal/models"
)

type AgentRepo struct {
	pool *pgxpool.Pool
}

func NewAgentRepo(pool *pgxpool.Pool) *AgentRepo {
	return &AgentRepo{pool: pool}
}

func (r *AgentRepo) Create(ctx context.Context, ag *models.Agent) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO agents (id, name, description, available)
		VALUES ($1, $2, $3, $4)
		RETURNING credits, reputation, created_at, updated_at
	`, ag.ID, ag.Name, ag.Description, ag.Available).Scan(&ag.Credits, &ag.Reputation, &ag.CreatedAt, &ag.UpdatedAt)
}

func (r *AgentRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error) {
	var ag models.Agent
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, credits, reputation, available, created_at, updated_at
		FROM agents WHERE id = $1
	`, id).Scan(&ag.ID, &ag.Name, &ag.Description, &ag.Credits, &ag.Reputation, &ag.Available, &ag.CreatedAt, &ag.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ag, nil
}

// Delete cascades to every owned row (jobs, schedules, messages,
// webhooks, keys, rate window) through the schema's ON DELETE CASCADE.
func (r *AgentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	return err
}

func (r *AgentRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agents`).Scan(&n)
	return n, err
}

func (r *AgentRepo) CreateAPIKey(ctx context.Context, k *models.APIKey) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO api_keys (id, agent_id, key_hash, key_prefix, is_active)
		VALUES ($1, $2, $3, $4, TRUE)
		RETURNING created_at
	`, k.ID, k.AgentID, k.KeyHash, k.KeyPrefix).Scan(&k.CreatedAt)
}

// FindAgentByKeyHash resolves an active API key hash to its agent.
func (r *AgentRepo) FindAgentByKeyHash(ctx context.Context, keyHash string) (*models.Agent, error) {
	var ag models.Agent
	err := r.pool.QueryRow(ctx, `
		SELECT a.id, a.name, a.description, a.credits, a.reputation, a.available, a.created_at, a.updated_at
		FROM api_keys k
		INNER JOIN agents a ON a.id = k.agent_id
		WHERE k.key_hash = $1 AND k.is_active = TRUE
	`, keyHash).Scan(&ag.ID, &ag.Name, &ag.Description, &ag.Credits, &ag.Reputation, &ag.Available, &ag.CreatedAt, &ag.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &ag, nil
}
