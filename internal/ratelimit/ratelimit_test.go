package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
)

// memStore mirrors the conditional-upsert semantics of the SQL store:
// one row per agent, reset when the window went stale, otherwise
// increment, all under a lock.
type memStore struct {
	mu      sync.Mutex
	windows map[uuid.UUID]*window
	err     error
}

type window struct {
	start time.Time
	count int
}

func newMemStore() *memStore {
	return &memStore{windows: make(map[uuid.UUID]*window)}
}

func (s *memStore) Increment(_ context.Context, agentID uuid.UUID, now, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	w, ok := s.windows[agentID]
	if !ok || !w.start.After(staleBefore) {
		s.windows[agentID] = &window{start: now, count: 1}
		return 1, nil
	}
	w.count++
	return w.count, nil
}

func TestAdmitUpToCap(t *testing.T) {
	store := newMemStore()
	l := New(store, 120, time.Minute)
	agent := uuid.New()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 120; i++ {
		if err := l.Admit(context.Background(), agent); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}
	err := l.Admit(context.Background(), agent)
	if apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("call 121: expected rate_limited, got %v", err)
	}
}

func TestWindowRollover(t *testing.T) {
	store := newMemStore()
	l := New(store, 2, time.Minute)
	agent := uuid.New()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 2; i++ {
		if err := l.Admit(context.Background(), agent); err != nil {
			t.Fatalf("call %d rejected: %v", i+1, err)
		}
	}
	if err := l.Admit(context.Background(), agent); apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("expected rejection inside window, got %v", err)
	}

	l.now = func() time.Time { return base.Add(61 * time.Second) }
	if err := l.Admit(context.Background(), agent); err != nil {
		t.Fatalf("call after rollover rejected: %v", err)
	}
}

func TestAgentsAreIndependent(t *testing.T) {
	store := newMemStore()
	l := New(store, 1, time.Minute)

	a, b := uuid.New(), uuid.New()
	if err := l.Admit(context.Background(), a); err != nil {
		t.Fatalf("agent a: %v", err)
	}
	if err := l.Admit(context.Background(), b); err != nil {
		t.Fatalf("agent b should have its own window: %v", err)
	}
	if err := l.Admit(context.Background(), a); apperr.KindOf(err) != apperr.KindRateLimited {
		t.Fatalf("agent a second call: expected rate_limited, got %v", err)
	}
}

func TestConcurrentAdmits(t *testing.T) {
	store := newMemStore()
	limit := 50
	l := New(store, limit, time.Minute)
	agent := uuid.New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Admit(context.Background(), agent); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if admitted != limit {
		t.Errorf("expected exactly %d admitted, got %d", limit, admitted)
	}
}

func TestStoreErrorIsDependencyFailure(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused")
	l := New(store, 120, time.Minute)

	err := l.Admit(context.Background(), uuid.New())
	if apperr.KindOf(err) != apperr.KindDependency {
		t.Fatalf("expected dependency_failure, got %v", err)
	}
}
