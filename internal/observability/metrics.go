package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	tokenChecks     *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheSweeps     *prometheus.CounterVec
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_auth_logins_total",
		Help: "Login attempts by outcome.",
	}, []string{"outcome"})
	tokenChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_auth_token_checks_total",
		Help: "Access token validations by outcome.",
	}, []string{"outcome"})
	gate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rbac_gate_decisions_total",
		Help: "Permission gate decisions by outcome.",
	}, []string{"outcome"})
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rbac_permission_cache_lookups_total",
		Help: "Permission cache lookups by result.",
	}, []string{"result"})
	sweeps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_rbac_permission_cache_invalidations_total",
		Help: "Permission cache invalidations by strategy.",
	}, []string{"strategy"})
	registry.MustRegister(requests, duration, logins, tokenChecks, gate, lookups, sweeps)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		logins:          logins,
		tokenChecks:     tokenChecks,
		gateDecisions:   gate,
		cacheLookups:    lookups,
		cacheSweeps:     sweeps,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
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

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// LoginAttempt counts a login by outcome.
func (m *Metrics) LoginAttempt(outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(outcome).Inc()
}

// TokenCheck counts an access token validation.
func (m *Metrics) TokenCheck(outcome string) {
	if m == nil {
		return
	}
	m.tokenChecks.WithLabelValues(outcome).Inc()
}

// GateDecision counts a permission gate decision.
func (m *Metrics) GateDecision(outcome string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(outcome).Inc()
}

// PermissionCacheLookup counts a cache hit or miss.
func (m *Metrics) PermissionCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// PermissionCacheInvalidated counts an invalidation (eager, sweep, flush).
func (m *Metrics) PermissionCacheInvalidated(strategy string) {
	if m == nil {
		return
	}
	m.cacheSweeps.WithLabelValues(strategy).Inc()
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
