package flush

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	evaluations *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		evaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitrelay",
			Subsystem: "flush",
			Name:      "evaluations_total",
			Help:      "Flush evaluations by trigger and outcome.",
		}, []string{"trigger", "outcome"}),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(m.evaluations)
}
