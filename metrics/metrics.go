package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests by method, path, and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "caseflow",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	VariableTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "variable_transitions_total",
		Help:      "Total variable status transitions by action and outcome.",
	}, []string{"action", "outcome"})

	ImportRowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "import_rows_total",
		Help:      "Total previewed import rows by validation outcome.",
	}, []string{"outcome"})

	OutboxDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "outbox_dispatched_total",
		Help:      "Total outbox messages processed by topic and outcome.",
	}, []string{"topic", "outcome"})

	SLABreachesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "caseflow",
		Name:      "sla_breaches_total",
		Help:      "Total SLA breaches recorded by severity level.",
	}, []string{"level"})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware instruments an http.Handler with request count and latency.
// The path label uses the supplied route pattern, not the raw URL, to
// keep cardinality bounded.
func Middleware(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
