package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. It implements session.Recorder and
// providers.UpstreamRecorder.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Session engine metrics
	ValidationsTotal       *prometheus.CounterVec
	SessionsDestroyedTotal *prometheus.CounterVec
	TokenRefreshesTotal    *prometheus.CounterVec
	CacheLookupsTotal      *prometheus.CounterVec

	// Identity provider metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factindex_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factindex_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		ValidationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factindex_session_validations_total",
				Help: "Total number of session validations by outcome",
			},
			[]string{"provider", "outcome", "reason"},
		),
		SessionsDestroyedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factindex_sessions_destroyed_total",
				Help: "Total number of sessions ended by validation",
			},
			[]string{"provider", "reason"},
		),
		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factindex_token_refreshes_total",
				Help: "Total number of access token refreshes",
			},
			[]string{"provider", "result"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factindex_authz_cache_lookups_total",
				Help: "Total number of authorization cache lookups",
			},
			[]string{"provider", "result"},
		),

		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "factindex_upstream_requests_total",
				Help: "Total number of identity provider API calls",
			},
			[]string{"provider", "op", "status"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "factindex_upstream_request_duration_seconds",
				Help:    "Identity provider API call duration in seconds",
				Buckets: []float64{.025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"provider", "op"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ValidationsTotal,
		m.SessionsDestroyedTotal,
		m.TokenRefreshesTotal,
		m.CacheLookupsTotal,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
	)

	return m
}

// ObserveValidation implements session.Recorder
func (m *Metrics) ObserveValidation(provider, outcome, reason string, destroyed bool) {
	m.ValidationsTotal.WithLabelValues(provider, outcome, reason).Inc()
	if destroyed {
		m.SessionsDestroyedTotal.WithLabelValues(provider, reason).Inc()
	}
}

// ObserveRefresh implements session.Recorder
func (m *Metrics) ObserveRefresh(provider string, ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.TokenRefreshesTotal.WithLabelValues(provider, result).Inc()
}

// ObserveCacheLookup implements session.Recorder
func (m *Metrics) ObserveCacheLookup(provider, result string) {
	m.CacheLookupsTotal.WithLabelValues(provider, result).Inc()
}

// ObserveUpstream implements providers.UpstreamRecorder
func (m *Metrics) ObserveUpstream(provider, op, status string, duration time.Duration) {
	m.UpstreamRequestsTotal.WithLabelValues(provider, op, status).Inc()
	m.UpstreamRequestDuration.WithLabelValues(provider, op).Observe(duration.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled with their mux
// route template so path parameters do not explode cardinality.
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tmpl, err := current.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(serveMux *http.ServeMux, gatherer prometheus.Gatherer) {
	serveMux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}
