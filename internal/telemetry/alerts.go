package telemetry

import (
	"fmt"
	"time"
)

// Evaluate derives alerts from a report. It has no side effects.
func Evaluate(r Report, th Thresholds, now time.Time) []Alert {
	alerts := []Alert{}
	add := func(kind string, sev Severity, msg string) {
		alerts = append(alerts, Alert{Type: kind, Severity: sev, Message: msg, Timestamp: now})
	}

	attempts := r.LoginAttempts
	if attempts.Total >= th.MinAttemptsForRate && r.SuccessRate < th.MinSuccessRate {
		add(AlertLowSuccessRate, SeverityWarning,
			fmt.Sprintf("login success rate is %.1f%% over %d attempts", r.SuccessRate, attempts.Total))
	}
	if r.ActiveLockouts > th.MaxActiveLockouts {
		add(AlertHighLockouts, SeverityWarning,
			fmt.Sprintf("%d accounts are locked", r.ActiveLockouts))
	}
	if attempts.Failed > th.MaxFailed {
		add(AlertHighFailedAttempts, SeverityWarning,
			fmt.Sprintf("%d failed logins in the window", attempts.Failed))
	}
	if attempts.UniqueIPs > th.MaxUniqueIPs {
		add(AlertSuspiciousIPs, SeverityWarning,
			fmt.Sprintf("logins from %d distinct addresses in the window", attempts.UniqueIPs))
	}
	if r.Health != nil && !r.Health.Healthy() {
		add(AlertSystemUnhealthy, SeverityCritical, "one or more dependencies are unhealthy")
	}
	return alerts
}

// monitoringError reports the sources that could not be collected.
func monitoringError(err error, now time.Time) []Alert {
	return []Alert{{
		Type:      AlertMonitoringError,
		Severity:  SeverityCritical,
		Message:   "security metrics collection incomplete: " + err.Error(),
		Timestamp: now,
	}}
}

// overallStatus is critical if any alert is, warning if there are alerts, else ok.
func overallStatus(alerts []Alert) string {
	status := "ok"
	for _, a := range alerts {
		if a.Severity == SeverityCritical {
			return "critical"
		}
		status = "warning"
	}
	return status
}
