package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Resolve cache outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics is valid and records
// nothing, so packages and tests can run without a registry.
type Metrics struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	decisions        *prometheus.CounterVec
	resolveCache     *prometheus.CounterVec
	overrideMutation *prometheus.CounterVec
	reconcileRuns    *prometheus.CounterVec
	reconcileTime    prometheus.Histogram
	reconcileLinks   *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coursehub_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_authz_decisions_total",
			Help: "Ownership decisions by result and denial reason.",
		}, []string{"result", "reason"}),
		resolveCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_authz_resolve_cache_total",
			Help: "Permission resolution cache lookups by outcome.",
		}, []string{"outcome"}),
		overrideMutation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_authz_override_mutations_total",
			Help: "Grant, block, revoke and unblock calls, split by whether state changed.",
		}, []string{"action", "changed"}),
		reconcileRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_reconcile_runs_total",
			Help: "Reconciliation runs by status.",
		}, []string{"status"}),
		reconcileTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "coursehub_reconcile_duration_seconds",
			Help:    "Reconciliation wall time.",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coursehub_reconcile_links_changed_total",
			Help: "Role-permission links added or removed by reconciliation.",
		}, []string{"change"}),
	}
	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.decisions,
		m.resolveCache,
		m.overrideMutation,
		m.reconcileRuns,
		m.reconcileTime,
		m.reconcileLinks,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveDecision(allowed bool, reason string) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.decisions.WithLabelValues(result, reason).Inc()
}

func (m *Metrics) ObserveResolve(outcome string) {
	if m == nil {
		return
	}
	m.resolveCache.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOverride(action string, changed bool) {
	if m == nil {
		return
	}
	m.overrideMutation.WithLabelValues(action, strconv.FormatBool(changed)).Inc()
}

func (m *Metrics) ObserveReconcile(err error, took time.Duration, linksAdded, linksRemoved int) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.reconcileRuns.WithLabelValues(status).Inc()
	m.reconcileTime.Observe(took.Seconds())
	m.reconcileLinks.WithLabelValues("added").Add(float64(linksAdded))
	m.reconcileLinks.WithLabelValues("removed").Add(float64(linksRemoved))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
