package scheduler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/httpx"
	"github.com/moltgrid/backend/internal/middleware"
	"github.com/moltgrid/backend/internal/models"
)

type CreateScheduleRequest struct {
	CronExpr  string `json:"cron_expr"`
	QueueName string `json:"queue_name"`
	Payload   string `json:"payload"`
	Priority  *int   `json:"priority,omitempty"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	var req CreateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	if req.CronExpr == "" || req.Payload == "" {
		httpx.WriteError(w, apperr.Validation("cron_expr and payload are required"))
		return
	}
	task, err := h.svc.Create(r.Context(), agent.ID, req.CronExpr, req.QueueName, req.Payload, req.Priority)
	if err != nil {
		h.writeErr(w, "create schedule", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	list, err := h.svc.List(r.Context(), agent.ID)
	if err != nil {
		h.writeErr(w, "list schedules", err)
		return
	}
	if list == nil {
		list = []*models.ScheduledTask{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"schedules": list, "count": len(list)})
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid schedule id"))
		return
	}
	task, err := h.svc.Get(r.Context(), id, agent.ID)
	if err != nil {
		h.writeErr(w, "get schedule", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

// ToggleSchedule handles PATCH /v1/schedules/{id}?enabled=bool.
func (h *Handler) ToggleSchedule(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid schedule id"))
		return
	}
	enabled, err := strconv.ParseBool(r.URL.Query().Get("enabled"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("enabled must be true or false"))
		return
	}
	task, err := h.svc.SetEnabled(r.Context(), id, agent.ID, enabled)
	if err != nil {
		h.writeErr(w, "toggle schedule", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid schedule id"))
		return
	}
	if err := h.svc.Delete(r.Context(), id, agent.ID); err != nil {
		h.writeErr(w, "delete schedule", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == "" {
		h.log.Error(op+" failed", "error", err)
	}
	httpx.WriteError(w, err)
}
