package relay

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/moltgrid/backend/internal/middleware"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// sendFrame is one client request over the socket.
type sendFrame struct {
	ToAgent string `json:"to_agent"`
	Channel string `json:"channel"`
	Payload string `json:"payload"`
}

type WSHandler struct {
	svc      Service
	registry *Registry
	agents   middleware.AgentLookup
	log      *slog.Logger
}

func NewWSHandler(svc Service, registry *Registry, agents middleware.AgentLookup, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WSHandler{svc: svc, registry: registry, agents: agents, log: log}
}

// ServeWS upgrades the connection and runs the read loop. Browsers
// cannot set headers on WebSocket dials, so the API key arrives as the
// api_key query parameter; the header is honored as a fallback.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("api_key")
	if raw == "" {
		raw = r.Header.Get("X-API-Key")
	}
	if raw == "" {
		http.Error(w, `{"error":"missing api key"}`, http.StatusUnauthorized)
		return
	}
	agent, err := h.agents.FindAgentByKeyHash(r.Context(), middleware.HashKey(raw))
	if err != nil {
		http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("relay: websocket upgrade failed", "agent_id", agent.ID, "error", err)
		return
	}
	defer conn.Close()

	sess := h.registry.Add(agent.ID, conn)
	defer h.registry.Remove(agent.ID, sess)
	h.log.Info("relay: agent connected", "agent_id", agent.ID)

	for {
		var frame sendFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Error("relay: websocket read failed", "agent_id", agent.ID, "error", err)
			}
			return
		}

		to, err := uuid.Parse(frame.ToAgent)
		if err != nil {
			h.writeError(sess, "to_agent must be a valid agent id")
			continue
		}
		msg, err := h.svc.Send(r.Context(), agent.ID, to, frame.Channel, frame.Payload)
		if err != nil {
			h.writeError(sess, err.Error())
			continue
		}
		if err := sess.send(map[string]any{"status": "delivered", "message_id": msg.ID}); err != nil {
			h.log.Error("relay: websocket write failed", "agent_id", agent.ID, "error", err)
			return
		}
	}
}

func (h *WSHandler) writeError(sess *Session, message string) {
	_ = sess.send(map[string]string{"error": message})
}
