package engine

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	SynthesisQueryTime prometheus.Histogram
	SynthesisErrors    *prometheus.CounterVec
}

var metrics = &Metrics{
	SynthesisQueryTime: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xtts",
		Subsystem: "engine",
		Name:      "request_seconds",
	}),
	SynthesisErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xtts",
		Subsystem: "engine",
		Name:      "errors_total",
	}, []string{"err_code"}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(metrics.SynthesisQueryTime)
	reg.MustRegister(metrics.SynthesisErrors)
}
