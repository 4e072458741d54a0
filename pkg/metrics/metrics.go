// Package metrics exposes Prometheus metrics for recordings and uploads.
//
// All methods are safe to call on a nil *Metrics, so components can take an
// optional metrics handle without guarding every call site.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicecollect"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	// Upload metrics
	UploadsStarted   prometheus.Counter
	UploadsSucceeded prometheus.Counter
	UploadsFailed    *prometheus.CounterVec
	UploadBytes      prometheus.Counter
	UploadDuration   prometheus.Histogram

	// Recording metrics
	RecordingsFinalized prometheus.Counter
	RecordingDuration   prometheus.Histogram
	RecordingErrors     *prometheus.CounterVec

	// Wizard metrics
	StepTransitions *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,

		UploadsStarted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_started_total",
			Help:      "Total number of recording uploads started",
		}),
		UploadsSucceeded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_succeeded_total",
			Help:      "Total number of recording uploads that completed",
		}),
		UploadsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_failed_total",
			Help:      "Total number of failed recording uploads by reason",
		}, []string{"reason"}),
		UploadBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Total bytes of recordings uploaded",
		}),
		UploadDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_duration_seconds",
			Help:      "Time spent uploading a recording",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),

		RecordingsFinalized: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_finalized_total",
			Help:      "Total number of recordings finalized",
		}),
		RecordingDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Playing time of finalized recordings",
			Buckets:   []float64{0.5, 1, 2, 3, 5, 10, 30},
		}),
		RecordingErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_errors_total",
			Help:      "Total number of recording failures by kind",
		}, []string{"kind"}),

		StepTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_transitions_total",
			Help:      "Total number of wizard step changes by destination step",
		}, []string{"step"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordUploadStarted() {
	if m == nil {
		return
	}
	m.UploadsStarted.Inc()
}

func (m *Metrics) RecordUploadSuccess(bytes int64, d time.Duration) {
	if m == nil {
		return
	}
	m.UploadsSucceeded.Inc()
	m.UploadBytes.Add(float64(bytes))
	m.UploadDuration.Observe(d.Seconds())
}

// RecordUploadFailure counts a failed upload. Reason is "cancelled" or
// "error".
func (m *Metrics) RecordUploadFailure(reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.UploadsFailed.WithLabelValues(reason).Inc()
	m.UploadDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordRecording(d time.Duration) {
	if m == nil {
		return
	}
	m.RecordingsFinalized.Inc()
	m.RecordingDuration.Observe(d.Seconds())
}

// RecordRecordingError counts a capture failure. Kind is "permission" or
// "device".
func (m *Metrics) RecordRecordingError(kind string) {
	if m == nil {
		return
	}
	m.RecordingErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordStep(step string) {
	if m == nil {
		return
	}
	m.StepTransitions.WithLabelValues(step).Inc()
}
