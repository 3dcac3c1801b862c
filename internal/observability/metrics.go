package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	sanitizeRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media_sanitizer",
			Name:      "runs_total",
			Help:      "Sanitization runs by mode and outcome.",
		},
		[]string{"mode", "outcome"},
	)
	sanitizeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "media_sanitizer",
			Name:      "run_duration_seconds",
			Help:      "Sanitization run duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"mode"},
	)
	engineLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "media_sanitizer",
			Name:      "engine_loads_total",
			Help:      "Engine load attempts by outcome.",
		},
		[]string{"outcome"},
	)
)

// RegisterMetrics registers collectors with the default registry once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sanitizeRuns, sanitizeDuration, engineLoads)
	})
}

// RecordRun counts one finished sanitization run. outcome is "ok" or a fault kind.
func RecordRun(mode, outcome string, duration time.Duration) {
	if mode == "" {
		mode = "custom"
	}
	sanitizeRuns.WithLabelValues(mode, outcome).Inc()
	sanitizeDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordEngineLoad counts one engine load attempt.
func RecordEngineLoad(ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	engineLoads.WithLabelValues(outcome).Inc()
}
