package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Analytics metrics
	RiskComputationsTotal   *prometheus.CounterVec
	RiskComputationDuration prometheus.Histogram
	CacheLookupsTotal       *prometheus.CounterVec
	SnapshotsWrittenTotal   *prometheus.CounterVec

	// Usage metrics
	UsageWritesTotal *prometheus.CounterVec

	// Auth metrics
	AuthAttemptsTotal *prometheus.CounterVec
	RateLimitedTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics with the registry, along with
// the Go runtime and process collectors
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unwind_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unwind_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unwind_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 6),
			},
			[]string{"method", "path"},
		),

		RiskComputationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unwind_risk_computations_total",
				Help: "Dashboards computed, by resulting risk level",
			},
			[]string{"level"},
		),
		RiskComputationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "unwind_risk_computation_duration_seconds",
				Help:    "Time to load usage and compute a dashboard",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unwind_dashboard_cache_lookups_total",
				Help: "Dashboard cache lookups by result",
			},
			[]string{"result"},
		),
		SnapshotsWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unwind_snapshots_total",
				Help: "Risk snapshots processed by the aggregator, by status",
			},
			[]string{"status"},
		),

		UsageWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unwind_usage_writes_total",
				Help: "Usage entry writes by operation",
			},
			[]string{"operation"},
		),

		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unwind_auth_attempts_total",
				Help: "Authentication attempts by endpoint and outcome",
			},
			[]string{"endpoint", "outcome"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unwind_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.RiskComputationsTotal,
		m.RiskComputationDuration,
		m.CacheLookupsTotal,
		m.SnapshotsWrittenTotal,
		m.UsageWritesTotal,
		m.AuthAttemptsTotal,
		m.RateLimitedTotal,
	)

	return m
}

// RecordComputation records one dashboard computation
func (m *Metrics) RecordComputation(_ context.Context, level string, duration time.Duration) {
	m.RiskComputationsTotal.WithLabelValues(level).Inc()
	m.RiskComputationDuration.Observe(duration.Seconds())
}

// RecordCacheLookup records a dashboard cache hit or miss
func (m *Metrics) RecordCacheLookup(_ context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordUsageWrite records a usage entry create, update or delete
func (m *Metrics) RecordUsageWrite(_ context.Context, operation string) {
	m.UsageWritesTotal.WithLabelValues(operation).Inc()
}

// RecordSnapshots adds the outcome counts of one aggregator run
func (m *Metrics) RecordSnapshots(written, failed int) {
	m.SnapshotsWrittenTotal.WithLabelValues("written").Add(float64(written))
	m.SnapshotsWrittenTotal.WithLabelValues("failed").Add(float64(failed))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// routeLabel prefers the matched route template so that path parameters do
// not explode label cardinality
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			path := routeLabel(r)
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
			metrics.HTTPResponseSize.WithLabelValues(r.Method, path).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus text format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
