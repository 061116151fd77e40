// Package metrics provides Prometheus metrics for dispatcher and sandbox
// monitoring: queue depth, execution counts/durations, and per-container
// resource usage.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	instance *Metrics
)

// Metrics holds all Prometheus metric collectors for the execution engine.
type Metrics struct {
	// Code Execution Metrics
	CodeExecutionsTotal  *prometheus.CounterVec
	CodeExecutionDuration *prometheus.HistogramVec
	ExecutionsInFlight   prometheus.Gauge
	ExecutionQueueLength prometheus.Gauge
	ContainerCPUUsage    *prometheus.GaugeVec
	ContainerMemoryUsage *prometheus.GaugeVec

	// Cleanup / Scratch Metrics
	CleanupErrorsTotal  *prometheus.CounterVec
	ScratchSlotsInUse   prometheus.Gauge
	OrphanedScratchSwept prometheus.Counter

	// System Metrics
	BuildInfo    *prometheus.GaugeVec
	StartupTime  prometheus.Gauge
	GoroutineNum prometheus.Gauge
}

// Get returns the singleton Metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics creates and registers all Prometheus metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	// Code Execution Metrics
	m.CodeExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "execution",
			Name:      "total",
			Help:      "Total number of code executions by language and outcome",
		},
		[]string{"language", "status"},
	)

	m.CodeExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rce",
			Subsystem: "execution",
			Name:      "duration_seconds",
			Help:      "Code execution duration in seconds, from executor entry to outcome",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"language"},
	)

	m.ExecutionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "execution",
			Name:      "in_flight",
			Help:      "Number of jobs currently executing in a sandbox",
		},
	)

	m.ExecutionQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "execution",
			Name:      "queue_length",
			Help:      "Number of jobs waiting in the work queue",
		},
	)

	m.ContainerCPUUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "container",
			Name:      "cpu_usage_percent",
			Help:      "Container CPU usage percentage",
		},
		[]string{"container_id", "language"},
	)

	m.ContainerMemoryUsage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "container",
			Name:      "memory_usage_bytes",
			Help:      "Container memory usage in bytes",
		},
		[]string{"container_id", "language"},
	)

	m.CleanupErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "cleanup",
			Name:      "errors_total",
			Help:      "Total number of errors encountered releasing sandbox resources",
		},
		[]string{"stage"},
	)

	m.ScratchSlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "scratch",
			Name:      "slots_in_use",
			Help:      "Number of scratch directories currently allocated",
		},
	)

	m.OrphanedScratchSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "rce",
			Subsystem: "scratch",
			Name:      "orphaned_swept_total",
			Help:      "Total number of orphaned scratch directories removed by the janitor",
		},
	)

	// System Metrics
	m.BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "build",
			Name:      "info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_date"},
	)

	m.StartupTime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "server",
			Name:      "startup_timestamp",
			Help:      "Server startup timestamp",
		},
	)

	m.GoroutineNum = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "rce",
			Subsystem: "server",
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// Set startup time
	m.StartupTime.Set(float64(time.Now().Unix()))

	return m
}

// RecordCodeExecution records a code execution metric
func (m *Metrics) RecordCodeExecution(language, status string, duration time.Duration) {
	m.CodeExecutionsTotal.WithLabelValues(language, status).Inc()
	m.CodeExecutionDuration.WithLabelValues(language).Observe(duration.Seconds())
}

// RecordCleanupError records a resource-cleanup failure at a given stage
// (e.g. "container_remove", "scratch_release").
func (m *Metrics) RecordCleanupError(stage string) {
	m.CleanupErrorsTotal.WithLabelValues(stage).Inc()
}

// RecordOrphanSwept records the janitor removing one orphaned scratch directory.
func (m *Metrics) RecordOrphanSwept() {
	m.OrphanedScratchSwept.Inc()
}

// SetBuildInfo sets build information
func (m *Metrics) SetBuildInfo(version, commit, buildDate string) {
	m.BuildInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
