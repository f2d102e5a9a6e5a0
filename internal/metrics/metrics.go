// Package metrics exposes the pipeline's Prometheus instrumentation:
// queue depth per stage kind, stage latency, and retry counts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cifix_queue_depth",
			Help: "Number of tasks currently pending or in retry, by stage kind",
		},
		[]string{"kind", "status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cifix_stage_duration_seconds",
			Help:    "Wall-clock duration of a single stage handler invocation",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind", "outcome"},
	)

	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cifix_retries_total",
			Help: "Total number of stage retries, by stage kind",
		},
		[]string{"kind"},
	)

	BuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cifix_builds_total",
			Help: "Total number of builds that reached a terminal state",
		},
		[]string{"status"},
	)

	PanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cifix_stage_panics_total",
			Help: "Total number of stage handler invocations that recovered from a panic",
		},
		[]string{"kind"},
	)
)

// Handler returns the HTTP handler serving /metrics in Prometheus
// exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}
