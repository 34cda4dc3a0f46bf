package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "msgport",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"method", "path", "status"}),
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "msgport",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Request processing latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		inFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "msgport",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of requests currently being served.",
		}),
	}
}

func (m *HTTPMetrics) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.inFlight.Inc()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		m.inFlight.Dec()
		status := strconv.Itoa(rw.status)
		path := metricPath(r.URL.Path)
		m.requestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.requestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}

// metricPath collapses per-resource path segments so delivery and export
// identifiers do not explode label cardinality.
func metricPath(p string) string {
	switch {
	case strings.HasPrefix(p, "/v1/deliveries/"):
		return "/v1/deliveries/:id"
	case strings.HasPrefix(p, "/v1/exports/"):
		if strings.HasSuffix(p, "/download") {
			return "/v1/exports/:id/download"
		}
		return "/v1/exports/:id"
	default:
		return p
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
