package models

import "time"

const (
	CheckStatusOK   = "ok"
	CheckStatusFail = "fail"
)

// UptimeCheck is one sample of the append-only self-health series.
type UptimeCheck struct {
	CheckedAt  time.Time `json:"checked_at"`
	Status     string    `json:"status"`
	ResponseMs int       `json:"response_ms"`
}

// UptimeSummary is the derived SLA read model over a rolling window.
// Percentages are successful_checks / total_checks; gaps in the series
// simply mean fewer samples.
type UptimeSummary struct {
	Window        string  `json:"window"`
	TotalChecks   int     `json:"total_checks"`
	SuccessChecks int     `json:"successful_checks"`
	UptimePct     float64 `json:"uptime_pct"`
	AvgResponseMs float64 `json:"avg_response_ms"`
}
