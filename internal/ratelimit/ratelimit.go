// Package ratelimit is the per-agent sliding-window admission gate
// consulted by every authenticated entry point.
package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
)

// Store increments the agent's window counter atomically, restarting
// windows that began at or before staleBefore. Implemented by
// repository.RateRepo.
type Store interface {
	Increment(ctx context.Context, agentID uuid.UUID, now, staleBefore time.Time) (int, error)
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	now    func() time.Time
}

// New creates a Limiter admitting limit calls per window per agent.
func New(store Store, limit int, window time.Duration) *Limiter {
	return &Limiter{store: store, limit: limit, window: window, now: time.Now}
}

// Admit records one call for the agent and reports whether it is
// within the window limit. A rejection is advisory, never fatal: the
// caller should back off and retry after the window rolls over.
func (l *Limiter) Admit(ctx context.Context, agentID uuid.UUID) error {
	now := l.now()
	count, err := l.store.Increment(ctx, agentID, now, now.Add(-l.window))
	if err != nil {
		return apperr.Dependency("rate limit store", err)
	}
	if count > l.limit {
		return apperr.RateLimited("rate limit exceeded")
	}
	return nil
}
