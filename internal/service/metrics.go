package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// viewMetrics reconciliation metrics shared by all views.
type viewMetrics struct {
	fetches   *prometheus.CounterVec
	openViews prometheus.Gauge
	liveness  *prometheus.GaugeVec
}

func newViewMetrics(reg prometheus.Registerer) *viewMetrics {
	factory := promauto.With(reg)
	return &viewMetrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tankwatch",
			Subsystem: "chart",
			Name:      "window_fetches_total",
			Help:      "Window fetch completions by outcome (applied, failed, stale).",
		}, []string{"outcome"}),
		openViews: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "tankwatch",
			Subsystem: "chart",
			Name:      "open_views",
			Help:      "Chart views currently running.",
		}),
		liveness: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "tankwatch",
			Subsystem: "chart",
			Name:      "views_by_liveness",
			Help:      "Open views per live channel status.",
		}, []string{"status"}),
	}
}
