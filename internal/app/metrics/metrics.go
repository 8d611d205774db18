// Package metrics registers every component's collectors on one registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/witwicki/streaming-xtts/internal/app/session"
	"github.com/witwicki/streaming-xtts/pkg/engine"
	"github.com/witwicki/streaming-xtts/pkg/ws"
)

func RegisterMetrics(reg prometheus.Registerer) {
	ws.RegisterMetrics(reg)
	engine.RegisterMetrics(reg)
	session.RegisterMetrics(reg)
}
