package webhooks

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/httpx"
	"github.com/moltgrid/backend/internal/middleware"
	"github.com/moltgrid/backend/internal/models"
)

type RegisterWebhookRequest struct {
	URL        string   `json:"url"`
	EventTypes []string `json:"event_types"`
	Secret     string   `json:"secret,omitempty"`
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

func (h *Handler) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	var req RegisterWebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	wh, err := h.svc.Register(r.Context(), agent.ID, req.URL, req.EventTypes, req.Secret)
	if err != nil {
		h.writeErr(w, "register webhook", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, wh)
}

func (h *Handler) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	list, err := h.svc.List(r.Context(), agent.ID)
	if err != nil {
		h.writeErr(w, "list webhooks", err)
		return
	}
	if list == nil {
		list = []*models.Webhook{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"webhooks": list, "count": len(list)})
}

func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid webhook id"))
		return
	}
	if err := h.svc.Delete(r.Context(), id, agent.ID); err != nil {
		h.writeErr(w, "delete webhook", err)
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
