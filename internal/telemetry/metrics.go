package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	WindowAttempts    *prometheus.GaugeVec
	ActiveLockouts    prometheus.Gauge
	ActiveRevocations prometheus.Gauge
	ActiveAlerts      *prometheus.GaugeVec
	CollectionErrors  prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WindowAttempts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "onesite_security_window_login_attempts",
			Help: "Login attempts in the rolling window by result",
		}, []string{"result"}),
		ActiveLockouts: f.NewGauge(prometheus.GaugeOpts{
			Name: "onesite_security_active_lockouts",
			Help: "Accounts locked at the last collection",
		}),
		ActiveRevocations: f.NewGauge(prometheus.GaugeOpts{
			Name: "onesite_security_active_revocations",
			Help: "Live token revocation entries at the last collection",
		}),
		ActiveAlerts: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "onesite_security_alerts",
			Help: "Alerts raised by the last collection by type",
		}, []string{"type"}),
		CollectionErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "onesite_security_collection_errors_total",
			Help: "Failed security metric collections",
		}),
	}
}

func (m *Metrics) publish(r *Report, alerts []Alert) {
	if m == nil {
		return
	}
	m.WindowAttempts.WithLabelValues("success").Set(float64(r.LoginAttempts.Successful))
	m.WindowAttempts.WithLabelValues("failure").Set(float64(r.LoginAttempts.Failed))
	m.ActiveLockouts.Set(float64(r.ActiveLockouts))
	m.ActiveRevocations.Set(float64(r.ActiveRevocations))
	m.ActiveAlerts.Reset()
	for _, a := range alerts {
		m.ActiveAlerts.WithLabelValues(a.Type).Inc()
	}
}

func (m *Metrics) incCollectionErrors() {
	if m != nil {
		m.CollectionErrors.Inc()
	}
}
