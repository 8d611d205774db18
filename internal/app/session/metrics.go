package session

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ActiveSessions      prometheus.Gauge
	SessionsClosed      *prometheus.CounterVec
	SessionSeconds      prometheus.Histogram
	SegmentsSynthesized prometheus.Counter
	SegmentsSkipped     prometheus.Counter
	SynthesisRetries    prometheus.Counter
	EngineSlotsInUse    prometheus.Gauge
}

var metrics = &Metrics{
	ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xtts",
		Subsystem: "session",
		Name:      "active",
	}),
	SessionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xtts",
		Subsystem: "session",
		Name:      "closed_total",
	}, []string{"outcome"}),
	SessionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xtts",
		Subsystem: "session",
		Name:      "duration_seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}),
	SegmentsSynthesized: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xtts",
		Subsystem: "session",
		Name:      "segments_synthesized_total",
	}),
	SegmentsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xtts",
		Subsystem: "session",
		Name:      "segments_skipped_total",
	}),
	SynthesisRetries: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "xtts",
		Subsystem: "session",
		Name:      "synthesis_retries_total",
	}),
	EngineSlotsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "xtts",
		Subsystem: "engine",
		Name:      "slots_in_use",
	}),
}

func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		metrics.ActiveSessions,
		metrics.SessionsClosed,
		metrics.SessionSeconds,
		metrics.SegmentsSynthesized,
		metrics.SegmentsSkipped,
		metrics.SynthesisRetries,
		metrics.EngineSlotsInUse,
	)
}
