package telemetry

import (
	"time"

	"github.com/CherreraTEG/OneSite/internal/audit"
	"github.com/CherreraTEG/OneSite/internal/platform/health"
)

type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Alert types.
const (
	AlertLowSuccessRate     = "low_success_rate"
	AlertHighLockouts       = "high_account_lockouts"
	AlertHighFailedAttempts = "high_failed_attempts"
	AlertSuspiciousIPs      = "suspicious_ips"
	AlertSystemUnhealthy    = "system_unhealthy"
	AlertMonitoringError    = "monitoring_error"
)

// Alert is advisory only; nothing in the login path reads it.
type Alert struct {
	Type      string    `json:"type"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Thresholds drive Evaluate.
type Thresholds struct {
	MinSuccessRate     float64
	MinAttemptsForRate int
	MaxActiveLockouts  int
	MaxFailed          int
	MaxUniqueIPs       int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSuccessRate:     50,
		MinAttemptsForRate: 10,
		MaxActiveLockouts:  5,
		MaxFailed:          20,
		MaxUniqueIPs:       10,
	}
}

// ThrottleStats reports the per-IP login limiter.
type ThrottleStats struct {
	TrackedIPs int    `json:"tracked_ips"`
	Rejected   uint64 `json:"rejected_total"`
}

// Collection sources, as named in Report.SourceErrors.
const (
	SourceLoginAttempts = "login_attempts"
	SourceLockouts      = "lockouts"
	SourceRevocations   = "revocations"
)

// Report is one collection over the rolling window.
type Report struct {
	CollectedAt       time.Time         `json:"timestamp"`
	WindowSeconds     int               `json:"window_seconds"`
	LoginAttempts     audit.WindowStats `json:"login_attempts"`
	SuccessRate       float64           `json:"success_rate"`
	ActiveLockouts    int               `json:"active_lockouts"`
	ActiveRevocations int               `json:"active_revocations"`
	RateLimiting      *ThrottleStats    `json:"rate_limiting,omitempty"`
	Health            *health.Report    `json:"system_health,omitempty"`
	SourceErrors      map[string]string `json:"source_errors,omitempty"`
}

// Summary is a report with its alerts and an overall status.
type Summary struct {
	Status string  `json:"status"`
	Report *Report `json:"metrics,omitempty"`
	Alerts []Alert `json:"alerts"`
}
