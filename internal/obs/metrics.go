package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
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

	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflow_transitions_total",
			Help: "Committed application transitions by action and resulting status.",
		},
		[]string{"action", "to"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Notifications created, by type.",
		},
		[]string{"type"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service is ready to accept traffic.",
	})
)

// Init registers the metrics with the default registry.
func Init() {
	prometheus.MustRegister(httpInFlight, httpRequestsTotal, httpRequestDuration,
		transitionsTotal, notificationsTotal, ready)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge; /readyz reports the same state.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveTransition counts a committed workflow transition.
func ObserveTransition(action, to string) {
	transitionsTotal.WithLabelValues(action, to).Inc()
}

// ObserveNotification counts a created notification.
func ObserveNotification(notificationType string) {
	notificationsTotal.WithLabelValues(notificationType).Inc()
}

// CanonicalPath collapses resource identifiers so metrics stay low
// cardinality. Unknown paths pass through unchanged.
func CanonicalPath(raw string) string {
	path := raw
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "applications":
			if len(parts) == 3 {
				return "/v1/applications/:id"
			}
			if len(parts) == 4 && (parts[3] == "transition" || parts[3] == "reviews") {
				return "/v1/applications/:id/" + parts[3]
			}
		case "notifications":
			if len(parts) == 4 && parts[3] == "read" {
				return "/v1/notifications/:id/read"
			}
		}
	}
	return path
}

// Instrument measures request rate, latency and in-flight count.
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

// statusWriter records the response code for the metrics labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
