// Package metrics provides Prometheus metrics for the podium ranking engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Write path
	commands       *prometheus.CounterVec
	commandLatency prometheus.Histogram
	participants   *prometheus.GaugeVec

	// Ranking store
	storeUpdateLatency prometheus.Histogram
	storeQueryLatency  prometheus.Histogram

	// Snapshot cache
	snapshotLookups         *prometheus.CounterVec
	snapshotRebuilds        *prometheus.CounterVec
	snapshotRebuildDuration prometheus.Histogram
	snapshotStaleServes     *prometheus.CounterVec
	snapshotGeneration      *prometheus.GaugeVec

	// Change notification
	changeEvaluations *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	publishLatency    prometheus.Histogram

	// Rate limiting
	rateLimitRefusals *prometheus.CounterVec
	rateLimitWindows  prometheus.Gauge

	// Queues feeding the ordered dispatchers
	queueSize     *prometheus.GaugeVec
	queueCapacity *prometheus.GaugeVec
	queueRejects  *prometheus.CounterVec

	// Ledger
	ledgerAppends  prometheus.Counter
	ledgerErrors   prometheus.Counter
	ledgerReplayed prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "podium",
		subsystem:        "engine",
		histogramBuckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.commands = m.counterVec("commands_total", "Score-delta commands by outcome", "board", "status")
	m.commandLatency = m.histogram("command_latency_milliseconds", "End-to-end command handling latency in milliseconds", m.histogramBuckets)
	m.participants = m.gaugeVec("participants", "Participants tracked by the ranking store", "board")

	m.storeUpdateLatency = m.histogram("store_update_latency_milliseconds", "Ranking store apply latency in milliseconds", m.histogramBuckets)
	m.storeQueryLatency = m.histogram("store_query_latency_milliseconds", "Ranking store query latency in milliseconds", m.histogramBuckets)

	m.snapshotLookups = m.counterVec("snapshot_lookups_total", "Snapshot cache lookups by result (hit, miss)", "board", "result")
	m.snapshotRebuilds = m.counterVec("snapshot_rebuilds_total", "Snapshot rebuilds executed", "board")
	m.snapshotRebuildDuration = m.histogram("snapshot_rebuild_duration_milliseconds", "Snapshot rebuild duration in milliseconds", m.histogramBuckets)
	m.snapshotStaleServes = m.counterVec("snapshot_stale_serves_total", "Reads served from the last snapshot after a failed rebuild", "board")
	m.snapshotGeneration = m.gaugeVec("snapshot_generation", "Generation of the most recently built snapshot", "board")

	m.changeEvaluations = m.counterVec("change_evaluations_total", "Change notifier evaluations by decision (emit, skip)", "board", "decision")
	m.eventsPublished = m.counterVec("events_published_total", "Change events published to the fan-out bus", "board")
	m.eventsDropped = m.counterVec("events_dropped_total", "Change events not published, by reason", "board", "reason")
	m.publishLatency = m.histogram("publish_latency_milliseconds", "Fan-out publish latency in milliseconds", m.histogramBuckets)

	m.rateLimitRefusals = m.counterVec("rate_limit_refusals_total", "Commands refused by a rate limiter, by scope", "scope")
	m.rateLimitWindows = m.gauge("rate_limit_windows", "Live per-participant rate-limit windows")

	m.queueSize = m.gaugeVec("queue_size", "Current queue depth", "queue")
	m.queueCapacity = m.gaugeVec("queue_capacity", "Queue capacity", "queue")
	m.queueRejects = m.counterVec("queue_rejects_total", "Items refused by a queue, by reason", "queue", "reason")

	m.ledgerAppends = m.counter("ledger_appends_total", "Committed commands appended to the ledger")
	m.ledgerErrors = m.counter("ledger_errors_total", "Ledger append failures")
	m.ledgerReplayed = m.counter("ledger_replayed_total", "Commands replayed from the ledger at startup")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = m.counterVec("errors_total", "Errors by component and type", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordCommand counts a command outcome for a board.
func RecordCommand(board, status string) {
	globalManager.commands.WithLabelValues(board, status).Inc()
}

// RecordCommandLatency records end-to-end command latency.
func RecordCommandLatency(latencyMs float64) {
	globalManager.commandLatency.Observe(latencyMs)
}

// UpdateParticipants sets the participant gauge for a board.
func UpdateParticipants(board string, count int) {
	globalManager.participants.WithLabelValues(board).Set(float64(count))
}

// RecordStoreUpdateLatency records ranking store apply latency.
func RecordStoreUpdateLatency(latencyMs float64) {
	globalManager.storeUpdateLatency.Observe(latencyMs)
}

// RecordStoreQueryLatency records ranking store query latency.
func RecordStoreQueryLatency(latencyMs float64) {
	globalManager.storeQueryLatency.Observe(latencyMs)
}

// RecordSnapshotLookup counts a cache hit or miss.
func RecordSnapshotLookup(board string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.snapshotLookups.WithLabelValues(board, result).Inc()
}

// RecordSnapshotRebuild records one rebuild and its duration.
func RecordSnapshotRebuild(board string, durationMs float64, generation uint64) {
	globalManager.snapshotRebuilds.WithLabelValues(board).Inc()
	globalManager.snapshotRebuildDuration.Observe(durationMs)
	globalManager.snapshotGeneration.WithLabelValues(board).Set(float64(generation))
}

// RecordSnapshotStaleServe counts a degraded read.
func RecordSnapshotStaleServe(board string) {
	globalManager.snapshotStaleServes.WithLabelValues(board).Inc()
}

// RecordChangeEvaluation counts a notifier decision.
func RecordChangeEvaluation(board string, emitted bool) {
	decision := "skip"
	if emitted {
		decision = "emit"
	}
	globalManager.changeEvaluations.WithLabelValues(board, decision).Inc()
}

// RecordEventPublished counts a published change event and its latency.
func RecordEventPublished(board string, latencyMs float64) {
	globalManager.eventsPublished.WithLabelValues(board).Inc()
	globalManager.publishLatency.Observe(latencyMs)
}

// RecordEventDropped counts a change event that was not published.
func RecordEventDropped(board, reason string) {
	globalManager.eventsDropped.WithLabelValues(board, reason).Inc()
}

// RecordRateLimitRefusal counts a refusal by scope (participant, instance).
func RecordRateLimitRefusal(scope string) {
	globalManager.rateLimitRefusals.WithLabelValues(scope).Inc()
}

// UpdateRateLimitWindows sets the live window gauge.
func UpdateRateLimitWindows(count int) {
	globalManager.rateLimitWindows.Set(float64(count))
}

// UpdateQueueSize sets the depth of a named queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// UpdateQueueCapacity sets the capacity of a named queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordQueueReject counts an item refused by a queue.
func RecordQueueReject(queue, reason string) {
	globalManager.queueRejects.WithLabelValues(queue, reason).Inc()
}

// RecordLedgerAppend counts a ledger append.
func RecordLedgerAppend() {
	globalManager.ledgerAppends.Inc()
}

// RecordLedgerError counts a failed ledger append.
func RecordLedgerError() {
	globalManager.ledgerErrors.Inc()
}

// RecordLedgerReplayed counts replayed commands.
func RecordLedgerReplayed(n int) {
	globalManager.ledgerReplayed.Add(float64(n))
}

// RecordHTTPRequest increments the HTTP request counter.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent increments the error counter for a component.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage updates the system memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount updates the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom metrics registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
