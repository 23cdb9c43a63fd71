package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Checkout metrics
	CheckoutAttemptsTotal *prometheus.CounterVec
	CheckoutDuration      *prometheus.HistogramVec

	// Gateway metrics
	GatewayCompletionsTotal  *prometheus.CounterVec
	GatewaySessionsPending   prometheus.Gauge
	GatewaySessionsStale     prometheus.Gauge
	GatewayReadinessFailures prometheus.Counter

	// Upstream IntentService metrics
	UpstreamRequestsTotal   *prometheus.CounterVec
	UpstreamRequestDuration *prometheus.HistogramVec

	// Verification metrics
	VerificationsTotal *prometheus.CounterVec

	// Session store metrics
	SessionWritesTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payments_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payments_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payments_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),

		// Checkout metrics
		CheckoutAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_checkout_attempts_total",
				Help: "Total number of checkout attempts",
			},
			[]string{"method", "status"},
		),
		CheckoutDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payments_checkout_duration_seconds",
				Help:    "Checkout duration in seconds, from intent to finalization",
				Buckets: []float64{.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"method"},
		),

		// Gateway metrics
		GatewayCompletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_gateway_completions_total",
				Help: "Total number of gateway completion callbacks",
			},
			[]string{"status"},
		),
		GatewaySessionsPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "payments_gateway_sessions_pending",
				Help: "Number of open checkout sessions awaiting completion",
			},
		),
		GatewaySessionsStale: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "payments_gateway_sessions_stale",
				Help: "Number of open checkout sessions older than the stale threshold",
			},
		),
		GatewayReadinessFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_gateway_readiness_failures_total",
				Help: "Total number of failed gateway readiness handshakes",
			},
		),

		// Upstream IntentService metrics
		UpstreamRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_upstream_requests_total",
				Help: "Total number of IntentService requests",
			},
			[]string{"operation", "status"},
		),
		UpstreamRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payments_upstream_request_duration_seconds",
				Help:    "IntentService request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		// Verification metrics
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_verifications_total",
				Help: "Total number of verification submissions",
			},
			[]string{"payment_status", "status"},
		),

		// Session store metrics
		SessionWritesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payments_session_writes_total",
				Help: "Total number of tenant session writes",
			},
			[]string{"status"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSize,
		m.HTTPResponseSize,
		m.CheckoutAttemptsTotal,
		m.CheckoutDuration,
		m.GatewayCompletionsTotal,
		m.GatewaySessionsPending,
		m.GatewaySessionsStale,
		m.GatewayReadinessFailures,
		m.UpstreamRequestsTotal,
		m.UpstreamRequestDuration,
		m.VerificationsTotal,
		m.SessionWritesTotal,
	)

	return m
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

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			if r.ContentLength > 0 {
				metrics.HTTPRequestSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(r.ContentLength))
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, r.URL.Path).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler returns the Prometheus scrape handler for the registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
