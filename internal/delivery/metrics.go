package delivery

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	requests *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "visitrelay",
			Subsystem: "delivery",
			Name:      "requests_total",
			Help:      "Outbound group requests by result.",
		}, []string{"result"}),
	}
}

func (m *Metrics) register(reg prometheus.Registerer) {
	if reg == nil {
		return
	}
	reg.MustRegister(m.requests)
}
