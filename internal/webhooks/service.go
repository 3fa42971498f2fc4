// Package webhooks owns outbound event delivery: subscription CRUD,
// the dispatcher that fans events out to subscriptions, and the River
// worker that performs the signed HTTP POSTs.
package webhooks

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/models"
)

// Store is the subscription repository surface. Implemented by
// repository.WebhookRepo.
type Store interface {
	Create(ctx context.Context, wh *models.Webhook) error
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]*models.Webhook, error)
	Delete(ctx context.Context, id, agentID uuid.UUID) (bool, error)
	ListActiveForEvent(ctx context.Context, agentID uuid.UUID, eventType string) ([]*models.Webhook, error)
}

type Service interface {
	Register(ctx context.Context, agentID uuid.UUID, rawURL string, eventTypes []string, secret string) (*models.Webhook, error)
	List(ctx context.Context, agentID uuid.UUID) ([]*models.Webhook, error)
	Delete(ctx context.Context, id, agentID uuid.UUID) error
}

type service struct {
	store Store
}

func NewService(store Store) *service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, agentID uuid.UUID, rawURL string, eventTypes []string, secret string) (*models.Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation("url must be an absolute http(s) URL")
	}
	if len(eventTypes) == 0 {
		return nil, apperr.Validation("event_types must not be empty")
	}
	for _, et := range eventTypes {
		if !models.ValidEventType(et) {
			return nil, apperr.Validation("unknown event type: " + et)
		}
	}
	wh := &models.Webhook{
		ID:         uuid.New(),
		AgentID:    agentID,
		URL:        rawURL,
		EventTypes: eventTypes,
		Secret:     secret,
		Active:     true,
	}
	if err := s.store.Create(ctx, wh); err != nil {
		return nil, fmt.Errorf("create webhook: %w", err)
	}
	return wh, nil
}

func (s *service) List(ctx context.Context, agentID uuid.UUID) ([]*models.Webhook, error) {
	return s.store.ListByAgent(ctx, agentID)
}

func (s *service) Delete(ctx context.Context, id, agentID uuid.UUID) error {
	ok, err := s.store.Delete(ctx, id, agentID)
	if err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	if !ok {
		return apperr.NotFound("webhook not found")
	}
	return nil
}
