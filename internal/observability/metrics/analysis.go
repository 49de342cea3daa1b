package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AnalysisMetrics records background job, pipeline stage and circuit breaker
// activity. It satisfies ports.JobObserver, pipeline.StageObserver and
// resilience.StateObserver.
type AnalysisMetrics struct {
	service  string
	registry *prometheus.Registry

	jobsTotal      *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobsInFlight   prometheus.Gauge
	queueLag       *prometheus.HistogramVec
	stageDuration  *prometheus.HistogramVec
	stageFallbacks *prometheus.CounterVec
	breakerState   *prometheus.GaugeVec
}

// NewAnalysisMetrics registers the collectors on registry, or on a new registry
// when registry is nil.
func NewAnalysisMetrics(service string, registry *prometheus.Registry) *AnalysisMetrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "jobs_total",
			Help:      "Total finished analysis jobs by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "job_duration_seconds",
			Help:      "Analysis job duration in seconds by status.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "jobs_in_flight",
			Help:      "Number of analysis jobs currently running.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	queueLag := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "analysis",
			Name:      "queue_lag_seconds",
			Help:      "Delay between upload and analysis start.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"service"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"service", "stage"},
	)
	stageFallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_fallbacks_total",
			Help:      "Stages that returned their default value.",
		},
		[]string{"service", "stage"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)

	registry.MustRegister(jobsTotal, jobDuration, jobsInFlight, queueLag, stageDuration, stageFallbacks, breakerState)

	return &AnalysisMetrics{
		service:        service,
		registry:       registry,
		jobsTotal:      jobsTotal,
		jobDuration:    jobDuration,
		jobsInFlight:   jobsInFlight,
		queueLag:       queueLag,
		stageDuration:  stageDuration,
		stageFallbacks: stageFallbacks,
		breakerState:   breakerState,
	}
}

func (m *AnalysisMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *AnalysisMetrics) JobStarted() {
	m.jobsInFlight.Inc()
}

func (m *AnalysisMetrics) JobFinished(err error, duration time.Duration) {
	m.jobsInFlight.Dec()

	status := "complete"
	if err != nil {
		status = "failed"
	}
	m.jobsTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

func (m *AnalysisMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.WithLabelValues(m.service).Observe(lag.Seconds())
}

func (m *AnalysisMetrics) ObserveStage(stage string, duration time.Duration, fallback bool) {
	m.stageDuration.WithLabelValues(m.service, stage).Observe(duration.Seconds())
	if fallback {
		m.stageFallbacks.WithLabelValues(m.service, stage).Inc()
	}
}

func (m *AnalysisMetrics) ObserveBreakerState(operation string, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}
