// Package uptime is the self-health monitor: a background probe that
// samples the service's own health endpoint and the rolling SLA
// summaries derived from the samples.
package uptime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/moltgrid/backend/internal/models"
)

// Sink records probe samples and answers window aggregates.
// Implemented by repository.UptimeRepo.
type Sink interface {
	Record(ctx context.Context, check models.UptimeCheck) error
	Aggregate(ctx context.Context, since time.Time) (total, success int, avgMs float64, err error)
}

// ProbeFunc performs one health probe and reports its outcome.
type ProbeFunc func(ctx context.Context) (status string, responseMs int)

// HTTPProbe probes url with a GET; any 2xx within the timeout is ok.
func HTTPProbe(url string, timeout time.Duration) ProbeFunc {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) (string, int) {
		start := time.Now()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return models.CheckStatusFail, 0
		}
		resp, err := client.Do(req)
		elapsed := int(time.Since(start).Milliseconds())
		if err != nil {
			return models.CheckStatusFail, elapsed
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return models.CheckStatusFail, elapsed
		}
		return models.CheckStatusOK, elapsed
	}
}

type Monitor struct {
	sink     Sink
	probe    ProbeFunc
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewMonitor(sink Sink, probe ProbeFunc, interval time.Duration, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{sink: sink, probe: probe, interval: interval, log: log, now: time.Now}
}

// Run probes until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick(ctx)
		}
	}
}

// Tick takes one sample. A failed write is logged and dropped; the
// series tolerates gaps.
func (m *Monitor) Tick(ctx context.Context) models.UptimeCheck {
	status, responseMs := m.probe(ctx)
	check := models.UptimeCheck{
		CheckedAt:  m.now(),
		Status:     status,
		ResponseMs: responseMs,
	}
	if err := m.sink.Record(ctx, check); err != nil {
		m.log.Error("uptime: record check failed", "error", err)
	}
	if status != models.CheckStatusOK {
		m.log.Warn("uptime: health probe failed", "response_ms", responseMs)
	}
	return check
}

var summaryWindows = []struct {
	name string
	span time.Duration
}{
	{"24h", 24 * time.Hour},
	{"7d", 7 * 24 * time.Hour},
	{"30d", 30 * 24 * time.Hour},
}

// Summary aggregates the standard rolling windows.
func (m *Monitor) Summary(ctx context.Context) ([]models.UptimeSummary, error) {
	now := m.now()
	out := make([]models.UptimeSummary, 0, len(summaryWindows))
	for _, w := range summaryWindows {
		total, success, avgMs, err := m.sink.Aggregate(ctx, now.Add(-w.span))
		if err != nil {
			return nil, fmt.Errorf("aggregate %s window: %w", w.name, err)
		}
		s := models.UptimeSummary{
			Window:        w.name,
			TotalChecks:   total,
			SuccessChecks: success,
			AvgResponseMs: avgMs,
		}
		if total > 0 {
			s.UptimePct = float64(success) / float64(total) * 100
		}
		out = append(out, s)
	}
	return out, nil
}
