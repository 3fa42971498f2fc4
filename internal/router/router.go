// Package router wires every HTTP surface onto one ServeMux.
package router

import (
	"net/http"

	"github.com/moltgrid/backend/internal/admin"
	"github.com/moltgrid/backend/internal/agents"
	"github.com/moltgrid/backend/internal/queue"
	"github.com/moltgrid/backend/internal/relay"
	"github.com/moltgrid/backend/internal/scheduler"
	"github.com/moltgrid/backend/internal/webhooks"
)

type Handlers struct {
	Agents    *agents.Handler
	Queue     *queue.Handler
	Schedules *scheduler.Handler
	Webhooks  *webhooks.Handler
	Relay     *relay.Handler
	RelayWS   *relay.WSHandler
	Admin     *admin.Handler
}

type Middleware func(http.Handler) http.Handler

// New builds the /v1 API. authn resolves the X-API-Key header, limit
// enforces the per-agent window; every agent route passes through
// both. Register, health, the admin surface, and the WebSocket route
// (which authenticates during the handshake) stay outside the chain.
func New(h Handlers, authn, limit Middleware) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/register", h.Agents.Register)
	mux.HandleFunc("GET /v1/health", h.Agents.Health)

	mux.HandleFunc("POST /v1/admin/login", h.Admin.Login)
	mux.HandleFunc("GET /v1/admin/dashboard", h.Admin.Dashboard)

	mux.HandleFunc("GET /v1/relay/ws", h.RelayWS.ServeWS)

	guarded := func(fn http.HandlerFunc) http.Handler {
		return authn(limit(fn))
	}

	mux.Handle("GET /v1/stats", guarded(h.Agents.Stats))
	mux.Handle("GET /v1/agents/me", guarded(h.Agents.Me))
	mux.Handle("DELETE /v1/agents/me", guarded(h.Agents.Deregister))

	mux.Handle("POST /v1/jobs", guarded(h.Queue.SubmitJob))
	mux.Handle("GET /v1/jobs", guarded(h.Queue.ListJobs))
	mux.Handle("POST /v1/jobs/claim", guarded(h.Queue.ClaimJob))
	mux.Handle("GET /v1/jobs/{id}", guarded(h.Queue.GetJob))
	mux.Handle("POST /v1/jobs/{id}/complete", guarded(h.Queue.CompleteJob))

	mux.Handle("POST /v1/schedules", guarded(h.Schedules.CreateSchedule))
	mux.Handle("GET /v1/schedules", guarded(h.Schedules.ListSchedules))
	mux.Handle("GET /v1/schedules/{id}", guarded(h.Schedules.GetSchedule))
	mux.Handle("PATCH /v1/schedules/{id}", guarded(h.Schedules.ToggleSchedule))
	mux.Handle("DELETE /v1/schedules/{id}", guarded(h.Schedules.DeleteSchedule))

	mux.Handle("POST /v1/webhooks", guarded(h.Webhooks.RegisterWebhook))
	mux.Handle("GET /v1/webhooks", guarded(h.Webhooks.ListWebhooks))
	mux.Handle("DELETE /v1/webhooks/{id}", guarded(h.Webhooks.DeleteWebhook))

	mux.Handle("POST /v1/relay/send", guarded(h.Relay.SendMessage))
	mux.Handle("GET /v1/relay/inbox", guarded(h.Relay.Inbox))
	mux.Handle("POST /v1/relay/messages/{id}/read", guarded(h.Relay.MarkRead))

	return mux
}
