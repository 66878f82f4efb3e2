// Package metrics exposes Prometheus instrumentation for frame-grid captures.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relief_capture_attempts_total",
		Help: "Capture attempts by final result",
	}, []string{"result"}) // result=ready|failed|cancelled

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relief_capture_frames_total",
		Help: "Grid cells by extraction outcome",
	}, []string{"outcome"}) // outcome=drawn|placeholder|timed_out|seek_failed

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relief_capture_failures_total",
		Help: "Failed attempts by error category",
	}, []string{"category"})

	recordingBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relief_capture_recording_bytes",
		Help:    "Size of recorded clips in bytes",
		Buckets: prometheus.ExponentialBuckets(64*1024, 2, 10), // 64KiB .. 32MiB
	})

	extractionSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relief_capture_extraction_seconds",
		Help:    "Time spent extracting frames and encoding the grid",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 13, 21, 34, 55},
	})

	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relief_capture_deliveries_total",
		Help: "Confirmed grid deliveries by sink and result",
	}, []string{"sink", "result"}) // result=success|failure

	active = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relief_capture_active",
		Help: "Whether a capture attempt is in progress (1) or not (0)",
	})
)

// RecordAttempt counts a finished attempt.
func RecordAttempt(result string) {
	attemptsTotal.WithLabelValues(normalize(result, "ready", "failed", "cancelled")).Inc()
}

// RecordFrame counts one grid cell outcome.
func RecordFrame(outcome string) {
	framesTotal.WithLabelValues(normalize(outcome, "drawn", "placeholder", "timed_out", "seek_failed")).Inc()
}

// RecordFailure counts a failed attempt by error category.
func RecordFailure(category string) {
	if category == "" {
		category = "unknown"
	}
	failuresTotal.WithLabelValues(category).Inc()
}

// ObserveRecording records the size of a finished clip.
func ObserveRecording(bytes int) {
	recordingBytes.Observe(float64(bytes))
}

// ObserveExtraction records extraction wall time.
func ObserveExtraction(d time.Duration) {
	extractionSeconds.Observe(d.Seconds())
}

// RecordDelivery counts a delivery to one sink.
func RecordDelivery(sink string, err error) {
	if sink == "" {
		sink = "unknown"
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	deliveriesTotal.WithLabelValues(sink, result).Inc()
}

// SetActive flags whether an attempt is running.
func SetActive(running bool) {
	if running {
		active.Set(1)
		return
	}
	active.Set(0)
}

func normalize(v string, allowed ...string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return "unknown"
}
