// Package metrics provides Prometheus metrics for the crowd-labeling engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Manager manages all Prometheus metrics for the labeling service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Core business metrics - the labeling pipeline itself
	tasksAdded           prometheus.Counter
	annotationsSubmitted prometheus.Counter
	tasksAutoResolved    prometheus.Counter
	conflictsFlagged     prometheus.Counter
	conflictsResolved    prometheus.Counter
	reservationsIssued   prometheus.Counter
	reservationsExpired  prometheus.Counter

	// Payroll metrics
	payrollRuns   prometheus.Counter
	payrollAmount prometheus.Counter
	unpaidTotal   prometheus.Gauge

	// Entity gauges
	userCount       prometheus.Gauge
	taskCount       prometheus.Gauge
	annotationCount prometheus.Gauge
	paymentCount    prometheus.Gauge

	// Journal metrics
	journalSize    prometheus.Gauge
	journalDropped prometheus.Counter

	// HTTP performance metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crowdlabel",
		subsystem:        "engine",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
	m.registry.MustRegister(c)
	return c
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
	m.registry.MustRegister(g)
	return g
}

func (m *Manager) initializeMetrics() {
	m.tasksAdded = m.counter("tasks_added_total", "Number of labeling tasks created.")
	m.annotationsSubmitted = m.counter("annotations_submitted_total", "Number of annotations recorded.")
	m.tasksAutoResolved = m.counter("tasks_auto_resolved_total", "Tasks finalized by unanimous consensus.")
	m.conflictsFlagged = m.counter("conflicts_flagged_total", "Tasks routed to manual review.")
	m.conflictsResolved = m.counter("conflicts_resolved_total", "Conflicted tasks resolved by an admin.")
	m.reservationsIssued = m.counter("reservations_issued_total", "Task reservations handed to annotators.")
	m.reservationsExpired = m.counter("reservations_expired_total", "Reservations reclaimed by the sweeper.")

	m.payrollRuns = m.counter("payroll_runs_total", "Payroll settlement runs executed.")
	m.payrollAmount = m.counter("payroll_amount_total", "Total amount settled across all payroll runs.")
	m.unpaidTotal = m.gauge("unpaid_total", "Sum owed to annotators for accepted, unsettled annotations.")

	m.userCount = m.gauge("users", "Number of user accounts.")
	m.taskCount = m.gauge("tasks", "Number of tasks.")
	m.annotationCount = m.gauge("annotations", "Number of annotations.")
	m.paymentCount = m.gauge("payments", "Number of settled payments.")

	m.journalSize = m.gauge("journal_size", "Events waiting in the audit journal.")
	m.journalDropped = m.counter("journal_dropped_total", "Audit events dropped because the journal was full.")

	m.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})
	m.registry.MustRegister(m.httpRequests)

	m.httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
	m.registry.MustRegister(m.httpRequestDuration)

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Current heap allocation in bytes.")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Current number of goroutines.")

	m.systemGCPauseTime = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_ms",
		Help:      "Average garbage collection pause time in milliseconds.",
		Buckets:   m.histogramBuckets,
	})
	m.registry.MustRegister(m.systemGCPauseTime)
}

// GetRegistry returns the custom registry used by the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Package-level helpers against the global manager.

// RecordTaskAdded counts a created task.
func RecordTaskAdded() { globalManager.tasksAdded.Inc() }

// RecordAnnotationSubmitted counts a recorded annotation.
func RecordAnnotationSubmitted() { globalManager.annotationsSubmitted.Inc() }

// RecordTaskAutoResolved counts a task finalized by unanimous consensus.
func RecordTaskAutoResolved() { globalManager.tasksAutoResolved.Inc() }

// RecordConflictFlagged counts a task routed to manual review.
func RecordConflictFlagged() { globalManager.conflictsFlagged.Inc() }

// RecordConflictResolved counts an admin conflict resolution.
func RecordConflictResolved() { globalManager.conflictsResolved.Inc() }

// RecordReservationIssued counts a reservation handed out by allocation.
func RecordReservationIssued() { globalManager.reservationsIssued.Inc() }

// RecordReservationExpired counts a reservation reclaimed by the sweeper.
func RecordReservationExpired() { globalManager.reservationsExpired.Inc() }

// RecordPayrollRun counts one settlement run and its settled amount.
func RecordPayrollRun(total float64) {
	globalManager.payrollRuns.Inc()
	globalManager.payrollAmount.Add(total)
}

// UpdateUnpaidTotal sets the currently-owed gauge.
func UpdateUnpaidTotal(amount float64) { globalManager.unpaidTotal.Set(amount) }

// UpdateEntityCounts sets the entity gauges.
func UpdateEntityCounts(users, tasks, annotations, payments int) {
	globalManager.userCount.Set(float64(users))
	globalManager.taskCount.Set(float64(tasks))
	globalManager.annotationCount.Set(float64(annotations))
	globalManager.paymentCount.Set(float64(payments))
}

// UpdateJournalSize sets the journal backlog gauge.
func UpdateJournalSize(n int) { globalManager.journalSize.Set(float64(n)) }

// RecordJournalDropped counts an audit event dropped on backpressure.
func RecordJournalDropped() { globalManager.journalDropped.Inc() }

// RecordHTTPRequest counts one HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records the latency of one HTTP request.
func RecordHTTPRequestDuration(endpoint, method, status string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets the heap allocation gauge.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine count gauge.
func UpdateSystemGoroutineCount(n int) { globalManager.systemGoroutineCount.Set(float64(n)) }

// RecordSystemGCPauseTime records an observed GC pause duration.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }
