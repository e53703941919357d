// Package metrics provides Prometheus metrics for the hibikido server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns all Prometheus collectors for the server.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Invocation pipeline
	invocations       prometheus.Counter
	searchResults     prometheus.Counter
	eventsEnqueued    prometheus.Counter
	eventsRejected    prometheus.Counter
	manifestations    prometheus.Counter
	manifestErrors    prometheus.Counter
	eventsDropped     prometheus.Counter
	manifestLagSecs   prometheus.Histogram

	// Orchestrator state
	queueDepth      prometheus.Gauge
	activeNiches    prometheus.Gauge
	nicheEvictions  prometheus.Counter
	collisionChecks prometheus.Counter
	collisionsFound prometheus.Counter
	tickDuration    prometheus.Histogram

	// Catalog / index
	catalogDocuments prometheus.Gauge
	indexEntries     prometheus.Gauge
	indexDuplicates  prometheus.Counter

	// HTTP surface
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// WebSocket surface
	wsConnections prometheus.Gauge
	wsPushErrors  prometheus.Counter
}

// Global manager registered on a private registry so default Go collectors
// never collide with ours.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // singleton registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "hibikido",
		subsystem:        "orchestrator",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initCollectors()
	return m
}

func (m *Manager) initCollectors() {
	auto := promauto.With(m.registry)

	m.invocations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "invocations_total",
		Help:      "Total number of invocation queries received",
	})

	m.searchResults = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "search_results_total",
		Help:      "Total number of search results returned across invocations",
	})

	m.eventsEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_enqueued_total",
		Help:      "Total number of sound events accepted into the manifestation queue",
	})

	m.eventsRejected = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_rejected_total",
		Help:      "Total number of structurally unusable sound events rejected at enqueue",
	})

	m.manifestations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "manifestations_total",
		Help:      "Total number of sound events admitted and emitted",
	})

	m.manifestErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "manifest_errors_total",
		Help:      "Total number of manifest callback failures (admission still stands)",
	})

	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_dropped_total",
		Help:      "Total number of queued events dropped as malformed at drain time",
	})

	m.manifestLagSecs = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "manifest_lag_seconds",
		Help:      "Time spent queued between enqueue and admission",
		Buckets:   m.histogramBuckets,
	})

	m.queueDepth = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "queue_depth",
		Help:      "Current number of pending sound events in the manifestation queue",
	})

	m.activeNiches = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_niches",
		Help:      "Current number of registered time-frequency niches",
	})

	m.nicheEvictions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "niche_evictions_total",
		Help:      "Total number of expired niches evicted",
	})

	m.collisionChecks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "collision_checks_total",
		Help:      "Total number of candidate-vs-niche collision tests performed",
	})

	m.collisionsFound = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "collisions_found_total",
		Help:      "Total number of collision tests that blocked an admission",
	})

	m.tickDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "tick_duration_milliseconds",
		Help:      "Histogram of scheduler tick durations in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.catalogDocuments = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "documents",
		Help:      "Current number of searchable documents in the catalog",
	})

	m.indexEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "index",
		Name:      "entries",
		Help:      "Current number of vectors in the semantic index",
	})

	m.indexDuplicates = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "index",
		Name:      "duplicates_total",
		Help:      "Total number of embedding texts resolved to an existing vector",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests by endpoint, method and status code",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: "http",
			Name:      "request_duration_milliseconds",
			Help:      "Histogram of HTTP request durations in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method"},
	)

	m.wsConnections = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "ws",
		Name:      "connections",
		Help:      "Current number of connected WebSocket clients",
	})

	m.wsPushErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "ws",
		Name:      "push_errors_total",
		Help:      "Total number of manifestation pushes that failed or were dropped",
	})
}

// Package-level helpers recording against the global manager.

func RecordInvocation()              { globalManager.invocations.Inc() }
func RecordSearchResults(n int)      { globalManager.searchResults.Add(float64(n)) }
func RecordEventEnqueued()           { globalManager.eventsEnqueued.Inc() }
func RecordEventRejected()           { globalManager.eventsRejected.Inc() }
func RecordManifestation()           { globalManager.manifestations.Inc() }
func RecordManifestError()           { globalManager.manifestErrors.Inc() }
func RecordEventDropped()            { globalManager.eventsDropped.Inc() }
func RecordManifestLag(secs float64) { globalManager.manifestLagSecs.Observe(secs) }

func UpdateQueueDepth(n int)          { globalManager.queueDepth.Set(float64(n)) }
func UpdateActiveNiches(n int)        { globalManager.activeNiches.Set(float64(n)) }
func RecordNicheEvictions(n int)      { globalManager.nicheEvictions.Add(float64(n)) }
func RecordCollisionCheck()           { globalManager.collisionChecks.Inc() }
func RecordCollisionFound()           { globalManager.collisionsFound.Inc() }
func RecordTickDuration(ms float64)   { globalManager.tickDuration.Observe(ms) }

func UpdateCatalogDocuments(n int) { globalManager.catalogDocuments.Set(float64(n)) }
func UpdateIndexEntries(n int)     { globalManager.indexEntries.Set(float64(n)) }
func RecordIndexDuplicate()        { globalManager.indexDuplicates.Inc() }

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}

func UpdateWSConnections(n int) { globalManager.wsConnections.Set(float64(n)) }
func RecordWSPushError()        { globalManager.wsPushErrors.Inc() }

// GetRegistry exposes the private registry for the /metrics handler.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
