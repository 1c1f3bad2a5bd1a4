package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess    = "success"
	OutcomeRetry      = "retry"
	OutcomeDeadLetter = "dead_letter"
)

// PipelineMetrics records per-message outcomes of the upload pipeline.
type PipelineMetrics struct {
	duration *prometheus.HistogramVec
	outcomes *prometheus.CounterVec
	failures *prometheus.CounterVec
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upload_processing_duration_seconds",
		Help:    "Duration of one upload message's processing in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"worker"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_messages_total",
		Help: "Processed upload messages by terminal outcome.",
	}, []string{"worker", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "upload_step_failures_total",
		Help: "Failed pipeline steps feeding the retry path.",
	}, []string{"worker", "step"})
	reg.MustRegister(duration, outcomes, failures)
	return &PipelineMetrics{
		duration: duration,
		outcomes: outcomes,
		failures: failures,
	}
}

// ObserveDuration records how long one message took to process.
func (p *PipelineMetrics) ObserveDuration(worker string, duration time.Duration) {
	if p == nil || p.duration == nil {
		return
	}
	p.duration.WithLabelValues(normalizeLabel(worker)).Observe(duration.Seconds())
}

// IncOutcome increments the counter for a message's terminal outcome.
func (p *PipelineMetrics) IncOutcome(worker, outcome string) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(normalizeLabel(worker), normalizeLabel(outcome)).Inc()
}

// IncStepFailure increments the failure counter for the named pipeline step.
func (p *PipelineMetrics) IncStepFailure(worker, step string) {
	if p == nil || p.failures == nil {
		return
	}
	p.failures.WithLabelValues(normalizeLabel(worker), normalizeLabel(step)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
