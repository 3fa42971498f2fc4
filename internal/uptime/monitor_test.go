package uptime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/moltgrid/backend/internal/models"
)

type memSink struct {
	mu        sync.Mutex
	checks    []models.UptimeCheck
	recordErr error
}

func (m *memSink) Record(_ context.Context, check models.UptimeCheck) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}
	m.checks = append(m.checks, check)
	return nil
}

func (m *memSink) Aggregate(_ context.Context, since time.Time) (int, int, float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, success, sumMs int
	for _, c := range m.checks {
		if c.CheckedAt.Before(since) {
			continue
		}
		total++
		sumMs += c.ResponseMs
		if c.Status == models.CheckStatusOK {
			success++
		}
	}
	if total == 0 {
		return 0, 0, 0, nil
	}
	return total, success, float64(sumMs) / float64(total), nil
}

func staticProbe(status string, ms int) ProbeFunc {
	return func(context.Context) (string, int) { return status, ms }
}

func TestTickRecordsSample(t *testing.T) {
	sink := &memSink{}
	m := NewMonitor(sink, staticProbe(models.CheckStatusOK, 12), time.Minute, nil)

	check := m.Tick(context.Background())
	if check.Status != models.CheckStatusOK || check.ResponseMs != 12 {
		t.Errorf("check = %+v", check)
	}
	if len(sink.checks) != 1 {
		t.Fatalf("recorded %d checks, want 1", len(sink.checks))
	}
}

func TestTickToleratesSinkFailure(t *testing.T) {
	sink := &memSink{recordErr: errors.New("db down")}
	m := NewMonitor(sink, staticProbe(models.CheckStatusFail, 0), time.Minute, nil)

	// Must not panic or block; the sample is simply dropped.
	check := m.Tick(context.Background())
	if check.Status != models.CheckStatusFail {
		t.Errorf("status = %q", check.Status)
	}
}

func TestHTTPProbe(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	status, _ := HTTPProbe(healthy.URL, 2*time.Second)(context.Background())
	if status != models.CheckStatusOK {
		t.Errorf("healthy probe = %q, want ok", status)
	}

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	status, _ = HTTPProbe(broken.URL, 2*time.Second)(context.Background())
	if status != models.CheckStatusFail {
		t.Errorf("broken probe = %q, want fail", status)
	}

	status, _ = HTTPProbe("http://127.0.0.1:1", 500*time.Millisecond)(context.Background())
	if status != models.CheckStatusFail {
		t.Errorf("unreachable probe = %q, want fail", status)
	}
}

func TestSummaryWindows(t *testing.T) {
	sink := &memSink{}
	m := NewMonitor(sink, staticProbe(models.CheckStatusOK, 10), time.Minute, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	// Three samples inside 24h (two ok, one fail) and one old sample
	// only the 30d window sees.
	sink.checks = []models.UptimeCheck{
		{CheckedAt: now.Add(-time.Hour), Status: models.CheckStatusOK, ResponseMs: 10},
		{CheckedAt: now.Add(-2 * time.Hour), Status: models.CheckStatusOK, ResponseMs: 20},
		{CheckedAt: now.Add(-3 * time.Hour), Status: models.CheckStatusFail, ResponseMs: 300},
		{CheckedAt: now.Add(-20 * 24 * time.Hour), Status: models.CheckStatusFail, ResponseMs: 50},
	}

	summaries, err := m.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("got %d windows, want 3", len(summaries))
	}

	day := summaries[0]
	if day.Window != "24h" || day.TotalChecks != 3 || day.SuccessChecks != 2 {
		t.Errorf("24h window = %+v", day)
	}
	if day.UptimePct < 66.6 || day.UptimePct > 66.7 {
		t.Errorf("24h uptime_pct = %f", day.UptimePct)
	}

	month := summaries[2]
	if month.Window != "30d" || month.TotalChecks != 4 || month.SuccessChecks != 2 {
		t.Errorf("30d window = %+v", month)
	}
	if month.UptimePct != 50 {
		t.Errorf("30d uptime_pct = %f", month.UptimePct)
	}
}

func TestSummaryEmptySeries(t *testing.T) {
	m := NewMonitor(&memSink{}, staticProbe(models.CheckStatusOK, 0), time.Minute, nil)
	summaries, err := m.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	for _, s := range summaries {
		if s.UptimePct != 0 || s.TotalChecks != 0 {
			t.Errorf("empty series window %s = %+v", s.Window, s)
		}
	}
}
