package agents

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/httpx"
	"github.com/moltgrid/backend/internal/middleware"
	"github.com/moltgrid/backend/internal/models"
)

type RegisterRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RegisterResponse struct {
	Agent  *models.Agent `json:"agent"`
	APIKey string        `json:"api_key"`
}

// Pinger reports database reachability. Implemented by pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PlatformSources feed the unauthenticated health aggregates.
type PlatformSources struct {
	Agents    interface{ Count(ctx context.Context) (int, error) }
	Jobs      interface{ CountByStatus(ctx context.Context, status string) (int, error) }
	Schedules interface{ CountEnabled(ctx context.Context) (int, error) }
	Webhooks  interface{ CountActive(ctx context.Context) (int, error) }
	Uptime    interface{ Summary(ctx context.Context) ([]models.UptimeSummary, error) }
}

// AgentSources feed the per-agent stats endpoint.
type AgentSources struct {
	Jobs interface {
		CountByAgent(ctx context.Context, agentID uuid.UUID) (map[string]int, error)
	}
	Schedules interface {
		CountByAgent(ctx context.Context, agentID uuid.UUID) (int, error)
	}
	Webhooks interface {
		CountByAgent(ctx context.Context, agentID uuid.UUID) (int, error)
	}
	Messages interface {
		CountUnread(ctx context.Context, agentID uuid.UUID) (int, error)
	}
}

type Handler struct {
	svc      Service
	db       Pinger
	platform PlatformSources
	perAgent AgentSources
	log      *slog.Logger
}

func NewHandler(svc Service, db Pinger, platform PlatformSources, perAgent AgentSources, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, db: db, platform: platform, perAgent: perAgent, log: log}
}

// Register handles POST /v1/register. This is the only unauthenticated
// write: the response carries the raw API key, shown exactly once.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	ag, rawKey, err := h.svc.Register(r.Context(), req.Name, req.Description)
	if err != nil {
		h.writeErr(w, "register agent", err)
		return
	}
	h.log.Info("agent registered", "agent_id", ag.ID, "name", ag.Name)
	httpx.WriteJSON(w, http.StatusOK, RegisterResponse{Agent: ag, APIKey: rawKey})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, agent)
}

func (h *Handler) Deregister(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	if err := h.svc.Deregister(r.Context(), agent.ID); err != nil {
		h.writeErr(w, "deregister agent", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Health handles GET /v1/health: operational status plus platform-wide
// aggregates and the SLA windows. The uptime monitor probes this
// route, so it reports degraded with a 503 when the database is gone.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.db.Ping(ctx); err != nil {
		h.log.Error("health check: database unreachable", "error", err)
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "database": "unreachable"})
		return
	}

	agentCount, err := h.platform.Agents.Count(ctx)
	if err != nil {
		h.writeErr(w, "count agents", err)
		return
	}
	jobCounts := make(map[string]int, 4)
	for _, status := range []string{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed} {
		n, err := h.platform.Jobs.CountByStatus(ctx, status)
		if err != nil {
			h.writeErr(w, "count jobs", err)
			return
		}
		jobCounts[status] = n
	}
	schedules, err := h.platform.Schedules.CountEnabled(ctx)
	if err != nil {
		h.writeErr(w, "count schedules", err)
		return
	}
	webhooks, err := h.platform.Webhooks.CountActive(ctx)
	if err != nil {
		h.writeErr(w, "count webhooks", err)
		return
	}
	uptime, err := h.platform.Uptime.Summary(ctx)
	if err != nil {
		h.writeErr(w, "uptime summary", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"database": "ok",
		"stats": map[string]any{
			"agents":            agentCount,
			"jobs":              jobCounts,
			"schedules_enabled": schedules,
			"webhooks_active":   webhooks,
		},
		"uptime": uptime,
	})
}

// Stats handles GET /v1/stats: the calling agent's own resource
// counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	ctx := r.Context()

	jobs, err := h.perAgent.Jobs.CountByAgent(ctx, agent.ID)
	if err != nil {
		h.writeErr(w, "count jobs", err)
		return
	}
	schedules, err := h.perAgent.Schedules.CountByAgent(ctx, agent.ID)
	if err != nil {
		h.writeErr(w, "count schedules", err)
		return
	}
	webhooks, err := h.perAgent.Webhooks.CountByAgent(ctx, agent.ID)
	if err != nil {
		h.writeErr(w, "count webhooks", err)
		return
	}
	unread, err := h.perAgent.Messages.CountUnread(ctx, agent.ID)
	if err != nil {
		h.writeErr(w, "count unread messages", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"agent_id":        agent.ID,
		"jobs":            jobs,
		"schedules":       schedules,
		"webhooks":        webhooks,
		"unread_messages": unread,
	})
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == "" {
		h.log.Error(op+" failed", "error", err)
	}
	httpx.WriteError(w, err)
}
