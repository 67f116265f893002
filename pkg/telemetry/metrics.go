package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for checkup runs.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Task metrics
	tasksExecuted *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	activeTasks   prometheus.Gauge

	// Output metrics
	actionsEmitted *prometheus.CounterVec
	analyzedPaths  prometheus.Gauge

	// Error metrics
	errorsByKind *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of runs started",
			},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a checkup run in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		tasksExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_executed_total",
				Help:      "Total number of tasks executed",
			},
			[]string{"task", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Duration of task execution in seconds",
				Buckets:   buckets,
			},
			[]string{"task"},
		),
		activeTasks: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_tasks",
				Help:      "Current number of tasks in flight",
			},
		),

		actionsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_emitted_total",
				Help:      "Total number of actions produced by evaluators",
			},
			[]string{"action"},
		),
		analyzedPaths: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "analyzed_paths",
				Help:      "Number of paths in the most recent run",
			},
		),

		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_kind_total",
				Help:      "Total number of checkup errors by kind",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.tasksExecuted,
		m.taskDuration,
		m.activeTasks,
		m.actionsEmitted,
		m.analyzedPaths,
		m.errorsByKind,
	)

	return m, nil
}

// Enabled reports whether metrics are being collected.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted() {
	if !m.Enabled() {
		return
	}
	m.runsStarted.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// SetAnalyzedPaths records the size of the resolved path set.
func (m *Metrics) SetAnalyzedPaths(count int) {
	if !m.Enabled() {
		return
	}
	m.analyzedPaths.Set(float64(count))
}

// Task Metrics

// TaskStarted marks a task as in flight.
func (m *Metrics) TaskStarted() {
	if !m.Enabled() {
		return
	}
	m.activeTasks.Inc()
}

// RecordTaskExecution records a finished task with its status and duration.
func (m *Metrics) RecordTaskExecution(taskName, status string, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.activeTasks.Dec()
	m.tasksExecuted.WithLabelValues(taskName, status).Inc()
	m.taskDuration.WithLabelValues(taskName).Observe(duration.Seconds())
}

// RecordAction counts an emitted action.
func (m *Metrics) RecordAction(actionName string) {
	if !m.Enabled() {
		return
	}
	m.actionsEmitted.WithLabelValues(actionName).Inc()
}

// Error Metrics

// RecordError records a checkup error by kind.
func (m *Metrics) RecordError(kind string) {
	if !m.Enabled() {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Gatherer returns the registry backing these metrics, or nil when disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if !m.Enabled() {
		return nil
	}
	return m.registry
}

// WriteTextfile writes the current metrics in the Prometheus text format,
// suitable for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if !m.Enabled() {
		return errors.New("metrics are disabled")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing metrics on
// ListenAddress. It returns nil when metrics or the listener are disabled.
func (m *Metrics) StartMetricsServer(logger *zerolog.Logger) *http.Server {
	if !m.Enabled() || m.config.ListenAddress == "" {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Log error but don't fail the run
			logger.Error().Err(err).Str("addr", server.Addr).Msg("Metrics server failed")
		}
	}()

	return server
}
