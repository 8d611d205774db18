package ws

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Connections prometheus.Gauge
	WriteErrors prometheus.Counter
}

var metrics = &Metrics{
	Connections: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xtts",
		Subsystem: "websockets",
		Name:      "conns_total",
	}),
	WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xtts",
		Subsystem: "websockets",
		Name:      "write_errors_total",
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.Connections)
	reg.MustRegister(metrics.WriteErrors)
}
