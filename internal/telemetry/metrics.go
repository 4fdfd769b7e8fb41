package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the pipeline engine.
type Metrics struct {
	config MetricsConfig

	// Run metrics
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec

	// Operation metrics (one operation per tree node per epoch)
	operationsExecuted *prometheus.CounterVec
	operationDuration  *prometheus.HistogramVec

	// Resource metrics
	resourcesManaged *prometheus.GaugeVec
	resourceState    *prometheus.GaugeVec

	// Extension-provider metrics (internal/registry/extpoint)
	extensionCalls    *prometheus.CounterVec
	extensionDuration *prometheus.HistogramVec
	extensionErrors   *prometheus.CounterVec

	// Error metrics, labeled by pipelineerr.Kind
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	// Change detection metrics (diff stage)
	changesDetected *prometheus.CounterVec

	// System metrics
	activeRuns       prometheus.Gauge
	queuedOperations prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
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

		runsStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_started_total",
				Help:      "Total number of pipeline runs started",
			},
			[]string{"plan_id"},
		),
		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_completed_total",
				Help:      "Total number of pipeline runs completed",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of a pipeline run in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		operationsExecuted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_executed_total",
				Help:      "Total number of operations executed during apply",
			},
			[]string{"kind", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of a single operation's apply in seconds",
				Buckets:   buckets,
			},
			[]string{"kind", "resource_type"},
		),

		resourcesManaged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resources_managed",
				Help:      "Current number of managed resources",
			},
			[]string{"type", "status"},
		),
		resourceState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resource_state",
				Help:      "Current state of resources (1=present, 0=absent)",
			},
			[]string{"resource_id", "type"},
		),

		extensionCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extension_calls_total",
				Help:      "Total number of WASM extension-provider calls",
			},
			[]string{"module", "verb"},
		),
		extensionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "extension_call_duration_seconds",
				Help:      "Duration of extension-provider calls in seconds",
				Buckets:   buckets,
			},
			[]string{"module", "verb"},
		),
		extensionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "extension_errors_total",
				Help:      "Total number of extension-provider call errors",
			},
			[]string{"module", "verb"},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of pipeline errors by error kind",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of pipeline errors by stage",
			},
			[]string{"code"},
		),

		changesDetected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "changes_detected_total",
				Help:      "Total number of resources found to require a change during diff",
			},
			[]string{"resource_type", "status"},
		),

		activeRuns: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_runs",
				Help:      "Current number of active pipeline runs",
			},
		),
		queuedOperations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queued_operations",
				Help:      "Current number of operations queued for the active epoch",
			},
		),
	}

	registry.MustRegister(
		m.runsStarted,
		m.runsCompleted,
		m.runDuration,
		m.operationsExecuted,
		m.operationDuration,
		m.resourcesManaged,
		m.resourceState,
		m.extensionCalls,
		m.extensionDuration,
		m.extensionErrors,
		m.errorsByClass,
		m.errorsByCode,
		m.changesDetected,
		m.activeRuns,
		m.queuedOperations,
	)

	return m, nil
}

// Run Metrics

// RecordRunStarted increments the counter for started runs.
func (m *Metrics) RecordRunStarted(planID string) {
	if m.runsStarted == nil {
		return
	}
	m.runsStarted.WithLabelValues(planID).Inc()
	m.activeRuns.Inc()
}

// RecordRunCompleted records a completed run with its status and duration.
func (m *Metrics) RecordRunCompleted(status string, duration time.Duration) {
	if m.runsCompleted == nil {
		return
	}
	m.runsCompleted.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activeRuns.Dec()
}

// Operation Metrics

// RecordOperationExecution records the execution of one operation.
func (m *Metrics) RecordOperationExecution(kind, status string, duration time.Duration, resourceType string) {
	if m.operationsExecuted == nil {
		return
	}
	m.operationsExecuted.WithLabelValues(kind, status).Inc()
	m.operationDuration.WithLabelValues(kind, resourceType).Observe(duration.Seconds())
}

// Resource Metrics

// SetResourceCount sets the current count of managed resources.
func (m *Metrics) SetResourceCount(resourceType, status string, count float64) {
	if m.resourcesManaged == nil {
		return
	}
	m.resourcesManaged.WithLabelValues(resourceType, status).Set(count)
}

// SetResourceState sets the state of a specific resource.
func (m *Metrics) SetResourceState(resourceID, resourceType string, present bool) {
	if m.resourceState == nil {
		return
	}
	value := 0.0
	if present {
		value = 1.0
	}
	m.resourceState.WithLabelValues(resourceID, resourceType).Set(value)
}

// Extension Metrics

// RecordExtensionCall records an extension-provider call with its duration.
func (m *Metrics) RecordExtensionCall(module, verb string, duration time.Duration) {
	if m.extensionCalls == nil {
		return
	}
	m.extensionCalls.WithLabelValues(module, verb).Inc()
	m.extensionDuration.WithLabelValues(module, verb).Observe(duration.Seconds())
}

// RecordExtensionError records an extension-provider call error.
func (m *Metrics) RecordExtensionError(module, verb string) {
	if m.extensionErrors == nil {
		return
	}
	m.extensionErrors.WithLabelValues(module, verb).Inc()
}

// Error Metrics

// RecordError records an error by class (pipelineerr.Kind) and stage code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Change Detection Metrics

// RecordChangeDetected records a diff-stage change detection event.
func (m *Metrics) RecordChangeDetected(resourceType, status string) {
	if m.changesDetected == nil {
		return
	}
	m.changesDetected.WithLabelValues(resourceType, status).Inc()
}

// System Metrics

// SetActiveRuns sets the current number of active runs.
func (m *Metrics) SetActiveRuns(count float64) {
	if m.activeRuns == nil {
		return
	}
	m.activeRuns.Set(count)
}

// SetQueuedOperations sets the current number of operations queued for the
// active epoch.
func (m *Metrics) SetQueuedOperations(count float64) {
	if m.queuedOperations == nil {
		return
	}
	m.queuedOperations.Set(count)
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

// ObserveDuration is a helper to time an operation and record it.
func (t *Timer) ObserveDuration(observer prometheus.Observer) {
	observer.Observe(t.Duration().Seconds())
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
