package agents

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/middleware"
	"github.com/moltgrid/backend/internal/models"
)

type memStore struct {
	agents map[uuid.UUID]*models.Agent
	keys   []*models.APIKey
}

func newMemStore() *memStore {
	return &memStore{agents: make(map[uuid.UUID]*models.Agent)}
}

func (m *memStore) Create(_ context.Context, ag *models.Agent) error {
	cp := *ag
	m.agents[ag.ID] = &cp
	return nil
}

func (m *memStore) CreateAPIKey(_ context.Context, k *models.APIKey) error {
	cp := *k
	m.keys = append(m.keys, &cp)
	return nil
}

func (m *memStore) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.agents, id)
	return nil
}

func TestRegisterMintsHashedKey(t *testing.T) {
	store := newMemStore()
	svc := NewService(store)

	ag, rawKey, err := svc.Register(context.Background(), "worker-7", "crawls feeds")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.HasPrefix(rawKey, models.APIKeyPrefix) {
		t.Errorf("key %q missing %q prefix", rawKey, models.APIKeyPrefix)
	}
	if !ag.Available {
		t.Error("new agent should be available")
	}

	if len(store.keys) != 1 {
		t.Fatalf("stored %d keys, want 1", len(store.keys))
	}
	key := store.keys[0]
	if key.AgentID != ag.ID {
		t.Errorf("key agent = %s, want %s", key.AgentID, ag.ID)
	}
	if key.KeyHash == rawKey {
		t.Error("raw key stored instead of its hash")
	}
	if key.KeyHash != middleware.HashKey(rawKey) {
		t.Error("stored hash does not match the minted key")
	}
	if !strings.HasPrefix(rawKey, key.KeyPrefix) {
		t.Errorf("key_prefix %q is not a prefix of the minted key", key.KeyPrefix)
	}
}

func TestRegisterKeysAreUnique(t *testing.T) {
	svc := NewService(newMemStore())
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		_, rawKey, err := svc.Register(context.Background(), "dup-check", "")
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		if seen[rawKey] {
			t.Fatal("duplicate api key minted")
		}
		seen[rawKey] = true
	}
}

func TestRegisterNameValidation(t *testing.T) {
	svc := NewService(newMemStore())

	if _, _, err := svc.Register(context.Background(), "   ", ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("blank name: expected validation error, got %v", err)
	}
	long := strings.Repeat("n", maxNameLen+1)
	if _, _, err := svc.Register(context.Background(), long, ""); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("long name: expected validation error, got %v", err)
	}
}
