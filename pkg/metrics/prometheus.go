package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	eventsIngested *prometheus.CounterVec
	detections     *prometheus.CounterVec
	trainingRuns   *prometheus.CounterVec
	errorsTotal    *prometheus.CounterVec
	modelTrainedOn prometheus.Gauge
	modelAge       prometheus.Gauge
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		eventsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_events_ingested_total",
				Help: "Total number of events accepted into a backend",
			},
			[]string{"backend", "event_type"},
		),
		detections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_detections_total",
				Help: "Total number of scored events by verdict",
			},
			[]string{"verdict"},
		),
		trainingRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_training_runs_total",
				Help: "Total number of retraining cycles by result",
			},
			[]string{"result"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "threatlens_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		modelTrainedOn: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "threatlens_model_trained_on_records",
				Help: "Number of records the live model was trained on",
			},
		),
		modelAge: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "threatlens_model_trained_at_seconds",
				Help: "Unix timestamp of the live model's training time",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "threatlens_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordEventIngested records an event accepted into a backend.
func (r *Recorder) RecordEventIngested(backend, eventType string) {
	r.eventsIngested.WithLabelValues(backend, eventType).Inc()
}

// RecordDetection records a scored event by verdict.
func (r *Recorder) RecordDetection(verdict string) {
	r.detections.WithLabelValues(verdict).Inc()
}

// RecordTrainingRun records a retraining cycle outcome.
func (r *Recorder) RecordTrainingRun(result string) {
	r.trainingRuns.WithLabelValues(result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordModelInfo records live model metadata gauges.
func (r *Recorder) RecordModelInfo(trainedOn int, trainedAtUnix int64) {
	r.modelTrainedOn.Set(float64(trainedOn))
	r.modelAge.Set(float64(trainedAtUnix))
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
