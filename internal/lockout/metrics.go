package lockout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FailuresRecorded prometheus.Counter
	LockoutsTotal    prometheus.Counter
	LockedAccounts   prometheus.Gauge
	StoreErrors      *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FailuresRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "onesite_lockout_failures_recorded_total",
			Help: "Total number of failed logins counted against a principal",
		}),
		LockoutsTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "onesite_lockout_locks_total",
			Help: "Total number of accounts locked after repeated failures",
		}),
		LockedAccounts: f.NewGauge(prometheus.GaugeOpts{
			Name: "onesite_lockout_locked_accounts",
			Help: "Accounts currently locked",
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onesite_lockout_store_errors_total",
			Help: "Lockout store failures by operation",
		}, []string{"operation"}),
	}
}

func (m *Metrics) incFailures() {
	if m != nil {
		m.FailuresRecorded.Inc()
	}
}

func (m *Metrics) incLockouts() {
	if m != nil {
		m.LockoutsTotal.Inc()
	}
}

func (m *Metrics) setLocked(n int) {
	if m != nil {
		m.LockedAccounts.Set(float64(n))
	}
}

func (m *Metrics) incStoreErrors(op string) {
	if m != nil {
		m.StoreErrors.WithLabelValues(op).Inc()
	}
}
