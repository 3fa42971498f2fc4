package relay

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/codec"
	"github.com/moltgrid/backend/internal/models"
)

// Store is the message repository surface. Implemented by
// repository.MessageRepo.
type Store interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error)
	Inbox(ctx context.Context, agentID uuid.UUID, channel string, unreadOnly bool, limit, offset int) ([]*models.Message, error)
	MarkRead(ctx context.Context, id, agentID uuid.UUID) (bool, error)
}

// Directory resolves recipient agents. Implemented by
// repository.AgentRepo.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Agent, error)
}

// Pusher delivers a live copy to connected sessions. Implemented by
// Registry.
type Pusher interface {
	Push(agentID uuid.UUID, v any) int
}

// Publisher hands domain events to the webhook dispatcher.
type Publisher interface {
	Publish(ctx context.Context, agentID uuid.UUID, eventType string, data map[string]any)
}

type InboxFilter struct {
	Channel    string
	UnreadOnly bool
	Limit      int
	Offset     int
}

type Service interface {
	Send(ctx context.Context, from, to uuid.UUID, channel, payload string) (*models.Message, error)
	Inbox(ctx context.Context, agentID uuid.UUID, f InboxFilter) ([]*models.Message, error)
	MarkRead(ctx context.Context, id, agentID uuid.UUID) (*models.Message, error)
}

type service struct {
	store  Store
	agents Directory
	codec  *codec.Codec
	live   Pusher
	events Publisher
}

func NewService(store Store, agents Directory, c *codec.Codec, live Pusher, events Publisher) *service {
	return &service{store: store, agents: agents, codec: c, live: live, events: events}
}

var _ Service = (*service)(nil)

// Send persists the message, then attempts a live push to the
// recipient's sessions. The stored row is authoritative; a recipient
// with no live session loses nothing.
func (s *service) Send(ctx context.Context, from, to uuid.UUID, channel, payload string) (*models.Message, error) {
	if payload == "" {
		return nil, apperr.Validation("payload must not be empty")
	}
	if len(payload) > models.MaxPayloadBytes {
		return nil, apperr.Validation(fmt.Sprintf("payload exceeds %d bytes", models.MaxPayloadBytes))
	}
	if _, err := s.agents.GetByID(ctx, to); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("recipient agent not found")
		}
		return nil, fmt.Errorf("resolve recipient: %w", err)
	}
	if channel == "" {
		channel = models.DefaultChannel
	}

	stored, err := s.codec.Encode(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	msg := &models.Message{
		ID:        uuid.New(),
		FromAgent: from,
		ToAgent:   to,
		Channel:   channel,
		Payload:   stored,
	}
	if err := s.store.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("store message: %w", err)
	}
	msg.Payload = payload

	s.live.Push(to, map[string]any{
		"event":      models.EventMessageReceived,
		"message_id": msg.ID,
		"from_agent": from,
		"channel":    channel,
		"payload":    payload,
	})
	s.events.Publish(ctx, to, models.EventMessageReceived, map[string]any{
		"message_id": msg.ID.String(),
		"from_agent": from.String(),
		"channel":    channel,
	})
	return msg, nil
}

func (s *service) Inbox(ctx context.Context, agentID uuid.UUID, f InboxFilter) ([]*models.Message, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 200 {
		f.Limit = 200
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	list, err := s.store.Inbox(ctx, agentID, f.Channel, f.UnreadOnly, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	for _, m := range list {
		plain, err := s.codec.Decode(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("decode message %s: %w", m.ID, err)
		}
		m.Payload = plain
	}
	return list, nil
}

// MarkRead is recipient-only. A miss is classified by reloading: a
// foreign or unknown message stays invisible, a re-read is a conflict.
func (s *service) MarkRead(ctx context.Context, id, agentID uuid.UUID) (*models.Message, error) {
	ok, err := s.store.MarkRead(ctx, id, agentID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	if !ok {
		m, err := s.store.GetByID(ctx, id)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("message not found")
		}
		if err != nil {
			return nil, fmt.Errorf("load message: %w", err)
		}
		if m.ToAgent != agentID {
			return nil, apperr.NotFound("message not found")
		}
		return nil, apperr.Conflict("message is already read")
	}

	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load message: %w", err)
	}
	plain, err := s.codec.Decode(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode message %s: %w", m.ID, err)
	}
	m.Payload = plain
	return m, nil
}
