package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/moltgrid/backend/internal/apperr"
	"github.com/moltgrid/backend/internal/models"
)

type stubAdmitter struct {
	err   error
	calls int
}

func (s *stubAdmitter) Admit(_ context.Context, _ uuid.UUID) error {
	s.calls++
	return s.err
}

func authedRequest() *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	agent := &models.Agent{ID: uuid.New(), Name: "limited"}
	return req.WithContext(WithAgent(req.Context(), agent))
}

func TestRateLimit_Admitted(t *testing.T) {
	admitter := &stubAdmitter{}
	mw := RateLimit(admitter, nil)(okHandler)

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, authedRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if admitter.calls != 1 {
		t.Errorf("limiter consulted %d times, want 1", admitter.calls)
	}
}

func TestRateLimit_Rejected(t *testing.T) {
	admitter := &stubAdmitter{err: apperr.RateLimited("rate limit exceeded")}
	mw := RateLimit(admitter, nil)(okHandler)

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, authedRequest())

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRateLimit_StoreOutageFailsOpen(t *testing.T) {
	admitter := &stubAdmitter{err: apperr.Dependency("rate limit store", context.DeadlineExceeded)}
	mw := RateLimit(admitter, nil)(okHandler)

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, authedRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("store outage should fail open, got %d", rec.Code)
	}
}

func TestRateLimit_SkipsUnauthenticated(t *testing.T) {
	admitter := &stubAdmitter{}
	mw := RateLimit(admitter, nil)(okHandler)

	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if admitter.calls != 0 {
		t.Errorf("limiter consulted for unauthenticated request")
	}
}
