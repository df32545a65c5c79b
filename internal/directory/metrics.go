package directory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts transport probes by mode and result.
type Metrics struct {
	Probes *prometheus.CounterVec
}

// NewMetrics registers directory metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Probes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "onesite_directory_transport_probes_total",
			Help: "Directory transport handshake probes by mode and result",
		}, []string{"mode", "result"}),
	}
}

func (m *Metrics) observeProbe(mode Mode, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.Probes.WithLabelValues(string(mode), result).Inc()
}
