package recorder

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	visits *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		visits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitrelay",
			Subsystem: "recorder",
			Name:      "visits_total",
			Help:      "Navigations processed by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(m.visits)
}
