// Package agents handles registration and the operational surface:
// health and platform stats.
package agents

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/middleware"
	"github.com/moltgrid/backend/internal/models"
)

const maxNameLen = 100

// Store is the agent repository surface. Implemented by
// repository.AgentRepo.
type Store interface {
	Create(ctx context.Context, ag *models.Agent) error
	CreateAPIKey(ctx context.Context, k *models.APIKey) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type Service interface {
	// Register creates the agent and mints its API key. The raw key is
	// returned exactly once; only its hash is stored.
	Register(ctx context.Context, name, description string) (*models.Agent, string, error)
	Deregister(ctx context.Context, id uuid.UUID) error
}

type service struct {
	store Store
}

func NewService(store Store) *service {
	return &service{store: store}
}

var _ Service = (*service)(nil)

func (s *service) Register(ctx context.Context, name, description string) (*models.Agent, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", apperr.Validation("name is required")
	}
	if len(name) > maxNameLen {
		return nil, "", apperr.Validation(fmt.Sprintf("name exceeds %d characters", maxNameLen))
	}

	ag := &models.Agent{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		Available:   true,
	}
	if err := s.store.Create(ctx, ag); err != nil {
		return nil, "", fmt.Errorf("create agent: %w", err)
	}

	raw, err := mintKey()
	if err != nil {
		return nil, "", err
	}
	key := &models.APIKey{
		ID:        uuid.New(),
		AgentID:   ag.ID,
		KeyHash:   middleware.HashKey(raw),
		KeyPrefix: raw[:12],
		IsActive:  true,
	}
	if err := s.store.CreateAPIKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("create api key: %w", err)
	}
	return ag, raw, nil
}

func (s *service) Deregister(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	return nil
}

func mintKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return models.APIKeyPrefix + hex.EncodeToString(buf), nil
}
