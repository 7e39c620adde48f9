// Package metrics provides Prometheus metrics for the Oraculus competition
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Command handling
	commandsTotal *prometheus.CounterVec

	// Submission scoring
	submissionsScored prometheus.Counter
	scoringDuration   prometheus.Histogram

	// Badges
	badgesAwarded *prometheus.CounterVec

	// Store health
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// Inbound message queue
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueueErrors prometheus.Counter

	// Workers
	workerCount prometheus.Gauge

	// Transport health
	transportSendErrors prometheus.Counter
	transportPollErrors prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "oraculus",
		subsystem:        "competition",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	factory := promauto.With(m.registry)

	m.commandsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "commands_total",
		Help:      "Chat commands processed, by command kind and outcome.",
	}, []string{"command", "status"})

	m.submissionsScored = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "submissions_scored_total",
		Help:      "Submissions scored against the master dataset.",
	})

	m.scoringDuration = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "scoring_duration_ms",
		Help:      "Time spent computing public and private scores.",
		Buckets:   m.histogramBuckets,
	})

	m.badgesAwarded = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "badges_awarded_total",
		Help:      "Badges newly awarded, by badge name.",
	}, []string{"badge"})

	m.storeLatency = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_latency_ms",
		Help:      "Store operation latency, by operation.",
		Buckets:   m.histogramBuckets,
	}, []string{"op"})

	m.storeErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "store_errors_total",
		Help:      "Store operation failures, by operation.",
	}, []string{"op"})

	m.queueSize = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_size",
		Help:      "Inbound messages currently queued.",
	})

	m.queueCapacity = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_capacity",
		Help:      "Configured inbound queue capacity.",
	})

	m.queueUtilization = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_utilization",
		Help:      "Queue fill ratio between 0 and 1.",
	})

	m.queueEnqueueErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_enqueue_errors_total",
		Help:      "Messages rejected by the inbound queue.",
	})

	m.workerCount = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "worker_count",
		Help:      "Command workers running.",
	})

	m.transportSendErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transport_send_errors_total",
		Help:      "Failed reply deliveries to the chat transport.",
	})

	m.transportPollErrors = factory.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "transport_poll_errors_total",
		Help:      "Failed event polls against the chat transport.",
	})

	m.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, by endpoint, method and status.",
	}, []string{"endpoint", "method", "status"})

	m.httpRequestDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request duration, by endpoint, method and status.",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status"})
}

// GetRegistry returns the registry backing the global manager, for exposition.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// RecordCommand counts one processed command by kind and outcome.
func RecordCommand(command, status string) {
	globalManager.commandsTotal.WithLabelValues(command, status).Inc()
}

// RecordSubmissionScored counts one scored submission.
func RecordSubmissionScored() {
	globalManager.submissionsScored.Inc()
}

// ObserveScoringDuration records the time spent scoring, in milliseconds.
func ObserveScoringDuration(ms float64) {
	globalManager.scoringDuration.Observe(ms)
}

// RecordBadgeAwarded counts one newly awarded badge.
func RecordBadgeAwarded(badge string) {
	globalManager.badgesAwarded.WithLabelValues(badge).Inc()
}

// ObserveStoreLatency records one store operation's latency in milliseconds.
func ObserveStoreLatency(op string, ms float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(ms)
}

// RecordStoreError counts one failed store operation.
func RecordStoreError(op string) {
	globalManager.storeErrors.WithLabelValues(op).Inc()
}

// UpdateQueueSize sets the current inbound queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the configured inbound queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue fill ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueueError counts one rejected enqueue.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// UpdateWorkerCount sets the number of running command workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordTransportSendError counts one failed reply delivery.
func RecordTransportSendError() {
	globalManager.transportSendErrors.Inc()
}

// RecordTransportPollError counts one failed event poll.
func RecordTransportPollError() {
	globalManager.transportPollErrors.Inc()
}

// RecordHTTPRequest counts one served HTTP request.
func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}

// RecordHTTPRequestDuration records one HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, status string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, status).Observe(ms)
}
