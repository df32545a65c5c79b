package token

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Issued   prometheus.Counter
	Revoked  prometheus.Counter
	Rejected *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Issued: f.NewCounter(prometheus.CounterOpts{
			Name: "onesite_tokens_issued_total",
			Help: "Access tokens issued",
		}),
		Revoked: f.NewCounter(prometheus.CounterOpts{
			Name: "onesite_tokens_revoked_total",
			Help: "Access tokens revoked before expiry",
		}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onesite_tokens_rejected_total",
			Help: "Tokens that failed verification by reason",
		}, []string{"reason"}),
	}
}

func (m *Metrics) incIssued() {
	if m != nil {
		m.Issued.Inc()
	}
}

func (m *Metrics) incRevoked() {
	if m != nil {
		m.Revoked.Inc()
	}
}

func (m *Metrics) incRejected(reason string) {
	if m != nil {
		m.Rejected.WithLabelValues(reason).Inc()
	}
}
