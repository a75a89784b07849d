package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics shared by every handler.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "Whether the service currently reports itself ready (1) or not (0).",
	})
)

// Domain metrics for the auth core and the registry.
var (
	tokenValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_validations_total",
			Help: "Token validation outcomes by result.",
		},
		[]string{"result"},
	)

	degradedFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_degraded_fallbacks_total",
		Help: "Validations accepted through the degraded-trust fallback.",
	})

	probeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "registry_probe_total",
			Help: "Active health probe outcomes by status.",
		},
		[]string{"status"},
	)

	probeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "registry_probe_duration_seconds",
		Help:    "Latency of outbound health probes.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	servicesGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "registry_services",
			Help: "Registered services by state.",
		},
		[]string{"state"},
	)
)

// Init registers all metrics in the default registry. Call once at startup.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		tokenValidations, degradedFallbacks,
		probeTotal, probeDuration, servicesGauge,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the current readiness state.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// CountTokenValidation records a token validation outcome
// (ok, malformed, expired, revoked, identity_not_found, unavailable, degraded).
func CountTokenValidation(result string) {
	tokenValidations.WithLabelValues(result).Inc()
	if result == "degraded" {
		degradedFallbacks.Inc()
	}
}

// ObserveProbe records a single health probe outcome.
func ObserveProbe(status string, latency time.Duration) {
	probeTotal.WithLabelValues(status).Inc()
	probeDuration.Observe(latency.Seconds())
}

// SetServiceCounts publishes registry aggregate gauges after each probe batch.
func SetServiceCounts(active, inactive, healthy, unhealthy int) {
	servicesGauge.WithLabelValues("active").Set(float64(active))
	servicesGauge.WithLabelValues("inactive").Set(float64(inactive))
	servicesGauge.WithLabelValues("healthy").Set(float64(healthy))
	servicesGauge.WithLabelValues("unhealthy").Set(float64(unhealthy))
}

// Instrument wraps a handler with in-flight, count and latency metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses resource identifiers so metric label cardinality
// stays bounded. Only known parameterised routes are rewritten.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" {
		return path
	}
	switch parts[1] {
	case "services", "roles", "identities":
	default:
		return path
	}
	// Fixed sub-resources of the collection are not identifiers.
	switch parts[2] {
	case "stats", "attention", "events", "heartbeat":
		return path
	}
	parts[2] = ":id"
	return "/" + strings.Join(parts, "/")
}

// statusWriter captures the response code for metric labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
