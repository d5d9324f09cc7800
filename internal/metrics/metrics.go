// Package metrics exposes prometheus counters and histograms for the
// inference hot path: per-engine inference latency, per-tile failures, and
// NMS suppression counts.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// InferenceDuration records wall-clock seconds per engine invocation,
	// labeled by engine kind ("dbnet"/"scrfd") and mode ("bound"/"unbound").
	InferenceDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "idetgo",
		Subsystem: "engine",
		Name:      "inference_duration_seconds",
		Help:      "Time spent in a single engine inference call.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"engine", "mode"})

	// TileFailuresTotal counts per-tile inference failures during tiled
	// detection, labeled by engine kind.
	TileFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idetgo",
		Subsystem: "tiling",
		Name:      "tile_failures_total",
		Help:      "Per-tile inference failures during InferTiled.",
	}, []string{"engine"})

	// DetectionsPreNMSTotal counts raw detections produced before NMS,
	// labeled by engine kind.
	DetectionsPreNMSTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idetgo",
		Subsystem: "nms",
		Name:      "detections_pre_total",
		Help:      "Detections passed into NMS suppression, before filtering.",
	}, []string{"engine"})

	// SuppressedTotal counts detections removed by NMS, labeled by engine
	// kind.
	SuppressedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "idetgo",
		Subsystem: "nms",
		Name:      "suppressed_total",
		Help:      "Detections removed by NMS suppression.",
	}, []string{"engine"})
)

// MustRegister registers every collector in this package against reg. It
// panics on duplicate registration, matching prometheus.MustRegister's
// convention for process-lifetime metrics that should never fail silently.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(InferenceDuration, TileFailuresTotal, DetectionsPreNMSTotal, SuppressedTotal)
}

// ObserveNMS records a single NMS suppression pass's before/after counts.
func ObserveNMS(engineLabel string, before, after int) {
	DetectionsPreNMSTotal.WithLabelValues(engineLabel).Add(float64(before))
	if before > after {
		SuppressedTotal.WithLabelValues(engineLabel).Add(float64(before - after))
	}
}
