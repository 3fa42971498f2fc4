package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/httpx"
	"github.com/moltgrid/backend/internal/models"
)

type LoginRequest struct {
	Password string `json:"password"`
}

// Dashboard pulls the same counters the public stats endpoint reads,
// plus unread message volume.
type DashboardSources struct {
	Agents    interface{ Count(ctx context.Context) (int, error) }
	Jobs      interface{ CountByStatus(ctx context.Context, status string) (int, error) }
	Schedules interface{ CountEnabled(ctx context.Context) (int, error) }
	Webhooks  interface{ CountActive(ctx context.Context) (int, error) }
	Uptime    interface{ Summary(ctx context.Context) ([]models.UptimeSummary, error) }
}

type Handler struct {
	svc     Service
	sources DashboardSources
	log     *slog.Logger
}

func NewHandler(svc Service, sources DashboardSources, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, sources: sources, log: log}
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	token, err := h.svc.Login(req.Password)
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if token == "" || token == r.Header.Get("Authorization") {
		httpx.WriteError(w, apperr.Unauthorized("missing bearer token"))
		return
	}
	if err := h.svc.ValidateToken(token); err != nil {
		httpx.WriteError(w, err)
		return
	}

	ctx := r.Context()
	agents, err := h.sources.Agents.Count(ctx)
	if err != nil {
		h.writeErr(w, "count agents", err)
		return
	}
	jobs := make(map[string]int, 4)
	for _, status := range []string{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted, models.JobStatusFailed} {
		n, err := h.sources.Jobs.CountByStatus(ctx, status)
		if err != nil {
			h.writeErr(w, "count jobs", err)
			return
		}
		jobs[status] = n
	}
	schedules, err := h.sources.Schedules.CountEnabled(ctx)
	if err != nil {
		h.writeErr(w, "count schedules", err)
		return
	}
	webhooks, err := h.sources.Webhooks.CountActive(ctx)
	if err != nil {
		h.writeErr(w, "count webhooks", err)
		return
	}
	uptime, err := h.sources.Uptime.Summary(ctx)
	if err != nil {
		h.writeErr(w, "uptime summary", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"agents":            agents,
		"jobs":              jobs,
		"schedules_enabled": schedules,
		"webhooks_active":   webhooks,
		"uptime":            uptime,
	})
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == "" {
		h.log.Error(op+" failed", "error", err)
	}
	httpx.WriteError(w, err)
}
