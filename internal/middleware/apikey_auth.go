package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/httpx"
	"github.com/moltgrid/backend/internal/models"
)

type contextKey string

const ctxAgentKey contextKey = "agent"

// AgentLookup resolves a hashed API key to its owning agent.
// Implemented by repository.AgentRepo.
type AgentLookup interface {
	FindAgentByKeyHash(ctx context.Context, keyHash string) (*models.Agent, error)
}

// APIKeyAuth authenticates requests by hashing the X-API-Key header
// (SHA-256) and looking it up in api_keys. On success the agent is
// placed into request context.
func APIKeyAuth(agents AgentLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-API-Key")
			if raw == "" {
				httpx.WriteError(w, apperr.Unauthorized("missing X-API-Key header"))
				return
			}
			agent, err := agents.FindAgentByKeyHash(r.Context(), HashKey(raw))
			if err != nil {
				httpx.WriteError(w, apperr.Unauthorized("invalid api key"))
				return
			}
			ctx := context.WithValue(r.Context(), ctxAgentKey, agent)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentFromCtx returns the authenticated agent or nil.
func AgentFromCtx(ctx context.Context) *models.Agent {
	ag, _ := ctx.Value(ctxAgentKey).(*models.Agent)
	return ag
}

// WithAgent returns a context carrying the given agent.
func WithAgent(ctx context.Context, ag *models.Agent) context.Context {
	return context.WithValue(ctx, ctxAgentKey, ag)
}

// HashKey is the storage hash for API keys. Also used when keys are
// minted at registration.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
