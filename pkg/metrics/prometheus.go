// Package metrics provides Prometheus metrics for the workloop distribution core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// ratioBuckets cover scores and penalties that live in [0,1].
var ratioBuckets = []float64{0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1} //nolint:gochecknoglobals // bucket table

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Distribution
	itemsConsidered   prometheus.Counter
	itemsDuplicate    prometheus.Counter
	itemsAssigned     *prometheus.CounterVec
	itemsUnassigned   prometheus.Counter
	itemsRejected     *prometheus.CounterVec
	allocationPenalty prometheus.Histogram
	dedupeFailOpen    prometheus.Counter

	// Attribution
	attributionVerdicts *prometheus.CounterVec
	linkageFailures     prometheus.Counter
	attributionDeferred *prometheus.CounterVec
	attributionFailed   *prometheus.CounterVec

	// Performance
	compositeScore  prometheus.Histogram
	tierTransitions *prometheus.CounterVec
	rosterSize      prometheus.Gauge

	// State store
	stateConflicts prometheus.Counter
	stateRetries   prometheus.Counter
	stateExhausted prometheus.Counter

	// Cycles
	cycleDuration *prometheus.HistogramVec
	cycleErrors   *prometheus.CounterVec

	// Collaborators
	trackerRequests *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Process
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "workloop",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.itemsConsidered = m.counter("items_considered_total", "Work items read from the source in distribution cycles")
	m.itemsDuplicate = m.counter("items_duplicate_total", "Work items skipped because their digest was already handled")
	m.itemsAssigned = m.counterVec("items_assigned_total", "Work items assigned, by worker", "worker")
	m.itemsUnassigned = m.counter("items_unassigned_total", "Work items left unassigned because no worker was scorable")
	m.itemsRejected = m.counterVec("records_rejected_total", "Malformed input records skipped, by kind", "kind")
	m.allocationPenalty = m.histogram("allocation_penalty_ratio", "Diversity penalty applied to the winning worker", ratioBuckets)
	m.dedupeFailOpen = m.counter("dedupe_fail_open_total", "Dedup lookups that failed and were treated as not duplicate")

	m.attributionVerdicts = m.counterVec("attribution_verdicts_total", "Attribution verdicts by evidence strength, channel and outcome",
		"strength", "channel", "attributed")
	m.linkageFailures = m.counter("attribution_linkage_failures_total", "Closed items with no submission found through any channel")
	m.attributionDeferred = m.counterVec("attribution_deferred_total", "Attributions deferred to the next cycle, by reason", "reason")
	m.attributionFailed = m.counterVec("attribution_failures_total", "Attributions stopped by a permanent tracker error, by stage", "stage")

	m.compositeScore = m.histogram("composite_score", "Composite reputation score per evaluation", ratioBuckets)
	m.tierTransitions = m.counterVec("tier_transitions_total", "Worker tier transitions", "from", "to")
	m.rosterSize = m.gauge("roster_size", "Number of workers loaded in the latest cycle")

	m.stateConflicts = m.counter("state_conflicts_total", "Optimistic concurrency conflicts on state saves")
	m.stateRetries = m.counter("state_retries_total", "State operations retried after a conflict")
	m.stateExhausted = m.counter("state_retries_exhausted_total", "State operations that exhausted their retry budget")

	m.cycleDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("cycle_duration_milliseconds"),
		Help:        "Duration of pipeline cycles in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"cycle"})
	m.cycleErrors = m.counterVec("cycle_errors_total", "Pipeline cycles that failed", "cycle")

	m.trackerRequests = m.counterVec("tracker_requests_total", "Submission tracker requests by operation and result", "operation", "result")
	m.eventsPublished = m.counterVec("events_published_total", "Lifecycle events published by type and result", "type", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("http_request_duration_milliseconds"),
		Help:        "HTTP request duration in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: m.customLabels,
	}, []string{"endpoint", "method", "status_code"})

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated by the process")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Number of live goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause in milliseconds", m.histogramBuckets)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	})
}

// RecordItemsConsidered counts items read from the source.
func RecordItemsConsidered(n int) {
	if globalManager.enabled {
		globalManager.itemsConsidered.Add(float64(n))
	}
}

// RecordItemDuplicate counts an item skipped as already handled.
func RecordItemDuplicate() {
	if globalManager.enabled {
		globalManager.itemsDuplicate.Inc()
	}
}

// RecordItemAssigned counts an assignment and the penalty paid by the winner.
func RecordItemAssigned(workerID string, penalty float64) {
	if globalManager.enabled {
		globalManager.itemsAssigned.WithLabelValues(workerID).Inc()
		globalManager.allocationPenalty.Observe(penalty)
	}
}

// RecordItemUnassigned counts an item that could not be assigned.
func RecordItemUnassigned() {
	if globalManager.enabled {
		globalManager.itemsUnassigned.Inc()
	}
}

// RecordRecordRejected counts a malformed record of the given kind.
func RecordRecordRejected(kind string) {
	if globalManager.enabled {
		globalManager.itemsRejected.WithLabelValues(kind).Inc()
	}
}

// RecordDedupeFailOpen counts a dedup lookup that failed open.
func RecordDedupeFailOpen() {
	if globalManager.enabled {
		globalManager.dedupeFailOpen.Inc()
	}
}

// RecordAttributionVerdict counts a resolved attribution.
func RecordAttributionVerdict(strength, channel string, attributed bool) {
	if globalManager.enabled {
		label := "false"
		if attributed {
			label = "true"
		}
		globalManager.attributionVerdicts.WithLabelValues(strength, channel, label).Inc()
	}
}

// RecordLinkageFailure counts a closed item whose submission could not be located.
func RecordLinkageFailure() {
	if globalManager.enabled {
		globalManager.linkageFailures.Inc()
	}
}

// RecordAttributionDeferred counts a deferred attribution.
func RecordAttributionDeferred(reason string) {
	if globalManager.enabled {
		globalManager.attributionDeferred.WithLabelValues(reason).Inc()
	}
}

// RecordAttributionFailed counts an attribution stopped by a permanent error.
func RecordAttributionFailed(stage string) {
	if globalManager.enabled {
		globalManager.attributionFailed.WithLabelValues(stage).Inc()
	}
}

// RecordCompositeScore observes an evaluated composite score.
func RecordCompositeScore(score float64) {
	if globalManager.enabled {
		globalManager.compositeScore.Observe(score)
	}
}

// RecordTierTransition counts a tier change.
func RecordTierTransition(from, to string) {
	if globalManager.enabled {
		globalManager.tierTransitions.WithLabelValues(from, to).Inc()
	}
}

// UpdateRosterSize sets the number of workers seen in the latest cycle.
func UpdateRosterSize(n int) {
	if globalManager.enabled {
		globalManager.rosterSize.Set(float64(n))
	}
}

// RecordStateConflict counts a rejected optimistic save.
func RecordStateConflict() {
	if globalManager.enabled {
		globalManager.stateConflicts.Inc()
	}
}

// RecordStateRetry counts a retried state operation.
func RecordStateRetry() {
	if globalManager.enabled {
		globalManager.stateRetries.Inc()
	}
}

// RecordStateExhausted counts a state operation that ran out of retries.
func RecordStateExhausted() {
	if globalManager.enabled {
		globalManager.stateExhausted.Inc()
	}
}

// RecordCycle observes a cycle run.
func RecordCycle(cycle string, durationMs float64, err error) {
	if !globalManager.enabled {
		return
	}
	globalManager.cycleDuration.WithLabelValues(cycle).Observe(durationMs)
	if err != nil {
		globalManager.cycleErrors.WithLabelValues(cycle).Inc()
	}
}

// RecordTrackerRequest counts a tracker request.
func RecordTrackerRequest(operation, result string) {
	if globalManager.enabled {
		globalManager.trackerRequests.WithLabelValues(operation, result).Inc()
	}
}

// RecordEventPublished counts a lifecycle event publish attempt.
func RecordEventPublished(eventType, result string) {
	if globalManager.enabled {
		globalManager.eventsPublished.WithLabelValues(eventType, result).Inc()
	}
}

// RecordHTTPRequest counts an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if globalManager.enabled {
		globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration observes HTTP request latency.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if globalManager.enabled {
		globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// UpdateSystemMemoryUsage sets the allocated heap size.
func UpdateSystemMemoryUsage(bytes uint64) {
	if globalManager.enabled {
		globalManager.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the goroutine gauge.
func UpdateSystemGoroutineCount(n int) {
	if globalManager.enabled {
		globalManager.systemGoroutineCount.Set(float64(n))
	}
}

// RecordSystemGCPauseTime observes the average GC pause.
func RecordSystemGCPauseTime(ms float64) {
	if globalManager.enabled {
		globalManager.systemGCPauseTime.Observe(ms)
	}
}

// GetRegistry returns the custom registry serving workloop metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Configure replaces the global manager with one built from opts on a fresh
// registry. Call it once at startup, before recording or serving metrics.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	globalManager = NewManager(append(append([]Option{}, opts...), WithPrometheusRegistry(registry))...)
	customRegistry = registry
}

// RefreshInterval returns how often process gauges should be sampled.
func RefreshInterval() time.Duration {
	return globalManager.refreshInterval
}

// Enabled reports whether recording is on.
func Enabled() bool {
	return globalManager.enabled
}
