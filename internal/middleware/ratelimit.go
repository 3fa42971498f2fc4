package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/httpx"
)

// Admitter is the rate limiter surface. Implemented by
// ratelimit.Limiter.
type Admitter interface {
	Admit(ctx context.Context, agentID uuid.UUID) error
}

// RateLimit gates every authenticated call through the sliding-window
// limiter. Must run after APIKeyAuth in the chain. A limiter store
// outage fails open: admission control is advisory and must never take
// the API down with it.
func RateLimit(limiter Admitter, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agent := AgentFromCtx(r.Context())
			if agent == nil {
				next.ServeHTTP(w, r)
				return
			}
			if err := limiter.Admit(r.Context(), agent.ID); err != nil {
				if apperr.KindOf(err) == apperr.KindRateLimited {
					httpx.WriteError(w, err)
					return
				}
				log.Error("rate limiter unavailable, admitting", "agent_id", agent.ID, "error", err)
			}
			next.ServeHTTP(w, r)
		})
	}
}
