package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "viewpoint_search"

var (
	// Labels: path (synthesized, fallback, cache), status (success, error)
	searchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "requests_total",
		Help:      "Search requests by final path and status",
	}, []string{"path", "status"})

	searchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "duration_seconds",
		Help:      "End-to-end search latency in seconds",
		Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"path"})

	// Labels: reason (MULTI_STATEMENT, FORBIDDEN_KEYWORD, PARAM_MISMATCH, UNKNOWN_SCHEMA_REF)
	gateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "gate",
		Name:      "rejections_total",
		Help:      "Synthesized queries rejected by the safety gate",
	}, []string{"reason"})

	// Labels: outcome (candidate, unavailable)
	synthesisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "synthesis",
		Name:      "duration_seconds",
		Help:      "Generative query synthesis latency in seconds",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
	}, []string{"outcome"})

	// Labels: path, outcome (success, error)
	executionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "datastore",
		Name:      "execution_duration_seconds",
		Help:      "Validated query execution latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"path", "outcome"})

	// Labels: template, trigger (fallback_only, unavailable, rejected, execution_failed)
	fallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "fallback",
		Name:      "used_total",
		Help:      "Fallback templates executed by trigger",
	}, []string{"template", "trigger"})

	// Labels: result (hit, miss, error)
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Result cache lookups by result",
	}, []string{"result"})

	// Labels: stage (enrichment, audit, example_store)
	degradedStages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "search",
		Name:      "degraded_stages_total",
		Help:      "Non-fatal stage failures that were skipped",
	}, []string{"stage"})

	// Labels: status (success, error)
	vocabularyReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vocabulary",
		Name:      "reloads_total",
		Help:      "Vocabulary hot reload attempts",
	}, []string{"status"})

	// Labels: method (jwt, api_key, anonymous), result (success, failure, rate_limited)
	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "attempts_total",
		Help:      "Authentication attempts by method and result",
	}, []string{"method", "result"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// RecordSearch records the outcome of one search request.
func RecordSearch(path string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	searchesTotal.WithLabelValues(path, status).Inc()
	searchDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordGateRejection counts a synthesized query refused by the gate.
func RecordGateRejection(reason string) {
	gateRejections.WithLabelValues(reason).Inc()
}

// RecordSynthesis records one generative call.
func RecordSynthesis(duration time.Duration, err error) {
	outcome := "candidate"
	if err != nil {
		outcome = "unavailable"
	}
	synthesisDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordExecution records one datastore execution.
func RecordExecution(path string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	executionDuration.WithLabelValues(path, outcome).Observe(duration.Seconds())
}

// RecordFallback counts a fallback template run and why it ran.
func RecordFallback(template, trigger string) {
	fallbacksTotal.WithLabelValues(template, trigger).Inc()
}

// RecordCacheLookup counts a cache hit, miss or error.
func RecordCacheLookup(result string) {
	cacheRequests.WithLabelValues(result).Inc()
}

// RecordDegradedStage counts a skipped non-fatal stage.
func RecordDegradedStage(stage string) {
	degradedStages.WithLabelValues(stage).Inc()
}

// RecordVocabularyReload counts a hot reload attempt.
func RecordVocabularyReload(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	vocabularyReloads.WithLabelValues(status).Inc()
}

// RecordAuthAttempt counts an authentication decision.
func RecordAuthAttempt(method, result string) {
	authAttempts.WithLabelValues(method, result).Inc()
}

// RecordHTTPMetrics records metrics for HTTP requests. route is the matched
// route template, not the raw path.
func RecordHTTPMetrics(method, route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
