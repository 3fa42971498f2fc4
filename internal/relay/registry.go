// Package relay is agent-to-agent messaging: durable inbox rows plus a
// best-effort live push to connected WebSocket sessions.
package relay

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Session is one live WebSocket connection. Writes are serialized with
// a per-connection mutex; gorilla allows at most one concurrent writer.
type Session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *Session) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

// Registry tracks connected sessions per agent. An agent may hold
// several connections at once; pushes go to all of them.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[uuid.UUID]map[*Session]struct{})}
}

func (r *Registry) Add(agentID uuid.UUID, conn *websocket.Conn) *Session {
	s := &Session{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[agentID]
	if !ok {
		set = make(map[*Session]struct{})
		r.sessions[agentID] = set
	}
	set[s] = struct{}{}
	return s
}

func (r *Registry) Remove(agentID uuid.UUID, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[agentID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(r.sessions, agentID)
	}
}

// Push writes v to every session of agentID and reports how many
// writes succeeded. A failed write never tears down the session here;
// the read loop owns connection lifecycle.
func (r *Registry) Push(agentID uuid.UUID, v any) int {
	r.mu.Lock()
	targets := make([]*Session, 0, len(r.sessions[agentID]))
	for s := range r.sessions[agentID] {
		targets = append(targets, s)
	}
	r.mu.Unlock()

	delivered := 0
	for _, s := range targets {
		if err := s.send(v); err == nil {
			delivered++
		}
	}
	return delivered
}

// Connected reports whether agentID has at least one live session.
func (r *Registry) Connected(agentID uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[agentID]) > 0
}
