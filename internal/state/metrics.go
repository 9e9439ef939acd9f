package state

import "github.com/prometheus/client_golang/prometheus"

// Metrics are the coordinator's Prometheus collectors.
type Metrics struct {
	bufferEntries prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		bufferEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "visitrelay",
			Name:      "buffer_entries",
			Help:      "Number of visits buffered after the most recent state write.",
		}),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(m.bufferEntries)
}
