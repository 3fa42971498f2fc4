package relay

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

type SendMessageRequest struct {
	ToAgent string `json:"to_agent"`
	Channel string `json:"channel"`
	Payload string `json:"payload"`
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

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	to, err := uuid.Parse(req.ToAgent)
	if err != nil {
		httpx.WriteError(w, apperr.Validation("to_agent must be a valid agent id"))
		return
	}
	msg, err := h.svc.Send(r.Context(), agent.ID, to, req.Channel, req.Payload)
	if err != nil {
		h.writeErr(w, "send message", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, msg)
}

// Inbox handles GET /v1/relay/inbox. Unread messages only by default;
// pass unread_only=false for the full history.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	q := r.URL.Query()
	f := InboxFilter{
		Channel:    q.Get("channel"),
		UnreadOnly: true,
		Limit:      intParam(q.Get("limit")),
		Offset:     intParam(q.Get("offset")),
	}
	if v := q.Get("unread_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			httpx.WriteError(w, apperr.Validation("unread_only must be true or false"))
			return
		}
		f.UnreadOnly = b
	}
	list, err := h.svc.Inbox(r.Context(), agent.ID, f)
	if err != nil {
		h.writeErr(w, "list inbox", err)
		return
	}
	if list == nil {
		list = []*models.Message{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"messages": list, "count": len(list)})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid message id"))
		return
	}
	msg, err := h.svc.MarkRead(r.Context(), id, agent.ID)
	if err != nil {
		h.writeErr(w, "mark message read", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, msg)
}

func intParam(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == "" {
		h.log.Error(op+" failed", "error", err)
	}
	httpx.WriteError(w, err)
}
