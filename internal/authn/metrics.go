package authn

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Attempts        *prometheus.CounterVec
	Duration        prometheus.Histogram
	LockoutFailOpen *prometheus.CounterVec
	AuditDropped    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onesite_auth_attempts_total",
			Help: "Authentication attempts by outcome",
		}, []string{"outcome"}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "onesite_auth_duration_seconds",
			Help:    "Time spent authenticating one request",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		LockoutFailOpen: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onesite_auth_lockout_fail_open_total",
			Help: "Logins that proceeded because the lockout store was unreachable",
		}, []string{"operation"}),
		AuditDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "onesite_auth_audit_dropped_total",
			Help: "Audit records that could not be recorded",
		}),
	}
}

func (m *Metrics) observe(outcome Outcome, d time.Duration) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(string(outcome)).Inc()
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) incLockoutFailOpen(op string) {
	if m != nil {
		m.LockoutFailOpen.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) incAuditDropped() {
	if m != nil {
		m.AuditDropped.Inc()
	}
}
