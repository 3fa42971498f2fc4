package queue

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/httpx"
	"github.com/moltgrid/backend/internal/middleware"
	"github.com/moltgrid/backend/internal/models"
	"github.com/moltgrid/backend/internal/repository"
)

type SubmitJobRequest struct {
	QueueName string `json:"queue_name"`
	Payload   string `json:"payload"`
	Priority  *int   `json:"priority,omitempty"`
}

type ClaimJobRequest struct {
	QueueName string `json:"queue_name"`
}

type CompleteJobRequest struct {
	Result string `json:"result"`
	Failed bool   `json:"failed"`
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

func (h *Handler) SubmitJob(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	var req SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	if req.Payload == "" {
		httpx.WriteError(w, apperr.Validation("payload is required"))
		return
	}
	job, err := h.svc.Submit(r.Context(), agent.ID, req.QueueName, req.Payload, req.Priority)
	if err != nil {
		h.writeErr(w, "submit job", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) ClaimJob(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	var req ClaimJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	job, err := h.svc.Claim(r.Context(), agent.ID, req.QueueName)
	if err != nil {
		h.writeErr(w, "claim job", err)
		return
	}
	if job == nil {
		// Empty queue is not an error.
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "empty"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid job id"))
		return
	}
	var req CompleteJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteError(w, apperr.Validation("invalid JSON"))
		return
	}
	job, err := h.svc.Complete(r.Context(), jobID, agent.ID, req.Result, req.Failed)
	if err != nil {
		h.writeErr(w, "complete job", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.WriteError(w, apperr.Validation("invalid job id"))
		return
	}
	job, err := h.svc.Get(r.Context(), jobID)
	if err != nil {
		h.writeErr(w, "get job", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, job)
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	agent := middleware.AgentFromCtx(r.Context())
	if agent == nil {
		httpx.WriteError(w, apperr.Unauthorized("unauthorized"))
		return
	}
	q := r.URL.Query()
	f := repository.ListFilter{
		AgentID:   &agent.ID,
		QueueName: q.Get("queue_name"),
	}
	if st := q.Get("status"); st != "" {
		f.Statuses = []string{st}
	}
	f.Limit = intParam(q.Get("limit"))
	f.Offset = intParam(q.Get("offset"))

	jobList, err := h.svc.List(r.Context(), f)
	if err != nil {
		h.writeErr(w, "list jobs", err)
		return
	}
	if jobList == nil {
		jobList = []*models.Job{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  jobList,
		"count": len(jobList),
	})
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	if apperr.KindOf(err) == "" {
		h.log.Error(op+" failed", "error", err)
	}
	httpx.WriteError(w, err)
}

func intParam(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
