package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type stubAgentLookup struct {
	agent    *models.Agent
	err      error
	lastHash string
}

func (s *stubAgentLookup) FindAgentByKeyHash(_ context.Context, keyHash string) (*models.Agent, error) {
	s.lastHash = keyHash
	if s.err != nil {
		return nil, s.err
	}
	return s.agent, nil
}

// okHandler writes 200 and the agent name (for assertions).
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	ag := AgentFromCtx(r.Context())
	if ag != nil {
		w.Write([]byte(ag.Name))
	}
})

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestAPIKeyAuth_ValidKey(t *testing.T) {
	agent := &models.Agent{ID: uuid.New(), Name: "test-agent"}
	lookup := &stubAgentLookup{agent: agent}

	mw := APIKeyAuth(lookup)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "mg_valid-test-key")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if body := rec.Body.String(); body != agent.Name {
		t.Errorf("expected agent name %q in body, got %q", agent.Name, body)
	}
	if lookup.lastHash == "mg_valid-test-key" {
		t.Error("raw key reached the store; expected a hash")
	}
	if lookup.lastHash != HashKey("mg_valid-test-key") {
		t.Errorf("lookup used hash %q, want HashKey of the raw key", lookup.lastHash)
	}
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	mw := APIKeyAuth(&stubAgentLookup{})(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestAPIKeyAuth_UnknownKey(t *testing.T) {
	lookup := &stubAgentLookup{err: errors.New("no rows in result set")}
	mw := APIKeyAuth(lookup)(okHandler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "bad_key")
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}
