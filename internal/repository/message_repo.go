package repository

import (
	"context"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moltgrid/backend/internal/models"
)

type MessageRepo struct {
	pool *pgxpool.Pool
}

func NewMessageRepo(pool *pgxpool.Pool) *MessageRepo {
	return &MessageRepo{pool: pool}
}

const messageColumns = `id, from_agent, to_agent, channel, payload, read_at, created_at`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var m models.Message
	err := row.Scan(&m.ID, &m.FromAgent, &m.ToAgent, &m.Channel, &m.Payload, &m.ReadAt, &m.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MessageRepo) Create(ctx context.Context, m *models.Message) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO messages (id, from_agent, to_agent, channel, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, m.ID, m.FromAgent, m.ToAgent, m.Channel, m.Payload).Scan(&m.CreatedAt)
}

func (r *MessageRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	return scanMessage(r.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id))
}

// Inbox lists messages addressed to agentID, newest first. channel
// narrows to one channel when non-empty; unreadOnly drops read rows.
func (r *MessageRepo) Inbox(ctx context.Context, agentID uuid.UUID, channel string, unreadOnly bool, limit, offset int) ([]*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE to_agent = $1`
	args := []any{agentID}
	if channel != "" {
		args = append(args, channel)
		query += ` AND channel = $2`
	}
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT ` + placeholder(&args, limit) + ` OFFSET ` + placeholder(&args, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// MarkRead sets read_at for a message addressed to agentID. The owner
// check rides in the same conditional update; false means the row was
// not found, not the caller's, or already read.
func (r *MessageRepo) MarkRead(ctx context.Context, id, agentID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE messages SET read_at = now()
		WHERE id = $1 AND to_agent = $2 AND read_at IS NULL
	`, id, agentID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func placeholder(args *[]any, v any) string {
	*args = append(*args, v)
	return "$" + strconv.Itoa(len(*args))
}

func (r *MessageRepo) CountUnread(ctx context.Context, agentID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM messages WHERE to_agent = $1 AND read_at IS NULL
	`, agentID).Scan(&n)
	return n, err
}
