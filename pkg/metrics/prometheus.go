package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Latency buckets in milliseconds, spanning a fast detector call up to a
// slow verifier.
var defaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Manager manages all Prometheus metrics for the gesture pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Frame loop
	framesProcessed  prometheus.Counter
	framesSkipped    prometheus.Counter
	detectorLatency  prometheus.Histogram
	detectorFailures prometheus.Counter

	// Proposals and events
	proposals      *prometheus.CounterVec
	events         *prometheus.CounterVec
	eventsMerged   prometheus.Counter
	eventsInflight prometheus.Gauge
	staleResponses prometheus.Counter

	// Verification and execution
	oracleLatency      prometheus.Histogram
	executionLatency   prometheus.Histogram
	executorFailures   prometheus.Counter
	studentPredictions *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager and its registry. Call it once at
// startup, before any Record function or Handler.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append(opts, WithPrometheusRegistry(customRegistry))...)
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "mudra",
		subsystem:        "pipeline",
		histogramBuckets: defaultLatencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	auto := promauto.With(m.registry)

	m.framesProcessed = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_processed_total",
		Help:      "Total number of frames run through the gesture engine",
	})

	m.framesSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "frames_skipped_total",
		Help:      "Total number of frames skipped by the motion gate",
	})

	m.detectorLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detector_latency_milliseconds",
		Help:      "Hand landmark detection latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.detectorFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "detector_failures_total",
		Help:      "Total number of failed detector calls",
	})

	m.proposals = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "proposals_total",
			Help:      "Total number of gesture proposals by intent and trigger",
		},
		[]string{"intent", "trigger"},
	)

	m.events = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_total",
			Help:      "Total number of terminal events by outcome and policy tag",
		},
		[]string{"outcome", "policy"},
	)

	m.eventsMerged = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_merged_total",
		Help:      "Total number of proposals merged into an in-flight event",
	})

	m.eventsInflight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "events_inflight",
		Help:      "Number of events not yet terminal",
	})

	m.staleResponses = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "stale_responses_total",
		Help:      "Total number of verifier responses that arrived after their event was terminal",
	})

	m.oracleLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "oracle_latency_milliseconds",
		Help:      "Verifier response latency in milliseconds, including late responses",
		Buckets:   m.histogramBuckets,
	})

	m.executionLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "execution_latency_milliseconds",
		Help:      "Action execution latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.executorFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "executor_failures_total",
		Help:      "Total number of failed action executions",
	})

	m.studentPredictions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "student_predictions_total",
			Help:      "Total number of shadow classifier calls by result",
		},
		[]string{"result"},
	)

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)
}

// RecordFrameProcessed increments the processed frames counter.
func RecordFrameProcessed() {
	globalManager.framesProcessed.Inc()
}

// RecordFrameSkipped increments the motion-gated frames counter.
func RecordFrameSkipped() {
	globalManager.framesSkipped.Inc()
}

// RecordDetectorLatency records detection latency in milliseconds.
func RecordDetectorLatency(latencyMs float64) {
	globalManager.detectorLatency.Observe(latencyMs)
}

// RecordDetectorFailure increments the detector failure counter.
func RecordDetectorFailure() {
	globalManager.detectorFailures.Inc()
}

// RecordProposal counts a proposal.
func RecordProposal(intent, trigger string) {
	globalManager.proposals.WithLabelValues(intent, trigger).Inc()
}

// RecordEventTerminal counts an event reaching a terminal state.
func RecordEventTerminal(outcome, policy string) {
	globalManager.events.WithLabelValues(outcome, policy).Inc()
}

// RecordEventMerged increments the merge counter.
func RecordEventMerged() {
	globalManager.eventsMerged.Inc()
}

// UpdateEventsInflight sets the number of non-terminal events.
func UpdateEventsInflight(count int) {
	globalManager.eventsInflight.Set(float64(count))
}

// RecordStaleResponse increments the stale verifier response counter.
func RecordStaleResponse() {
	globalManager.staleResponses.Inc()
}

// RecordOracleLatency records verifier latency in milliseconds.
func RecordOracleLatency(latencyMs float64) {
	globalManager.oracleLatency.Observe(latencyMs)
}

// RecordExecutionLatency records execution latency in milliseconds.
func RecordExecutionLatency(latencyMs float64) {
	globalManager.executionLatency.Observe(latencyMs)
}

// RecordExecutorFailure increments the executor failure counter.
func RecordExecutorFailure() {
	globalManager.executorFailures.Inc()
}

// RecordStudentPrediction counts a shadow classifier call; result is
// "ok" or "error".
func RecordStudentPrediction(result string) {
	globalManager.studentPredictions.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Handler serves the custom registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}
