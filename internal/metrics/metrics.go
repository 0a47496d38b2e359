// Package metrics exposes Prometheus collectors for the feedback service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedback"

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, labelled by chi route pattern.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes handler latency per route
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Time spent serving HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// HTTPRequestsInFlight is the number of requests being served
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Requests currently being served.",
		},
	)
)

var (
	// DBConnectionsOpen mirrors the pgx pool total
	DBConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections_open",
			Help:      "Connections held by the database pool.",
		},
	)

	// DBConnectionsInUse mirrors acquired pgx pool connections
	DBConnectionsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "connections_in_use",
			Help:      "Pool connections checked out by queries.",
		},
	)

	// DBQueryDuration measures repository query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Repository query latency by operation.",
			Buckets:   []float64{.002, .01, .05, .1, .5, 1, 5},
		},
		[]string{"operation"},
	)
)

// Submission outcomes.
const (
	OutcomeRecorded = "recorded"
	OutcomeSpam     = "spam"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

var (
	// SubmissionsTotal counts processed submissions by outcome
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "submissions",
			Name:      "total",
			Help:      "Total number of form submissions by outcome",
		},
		[]string{"outcome"},
	)

	// MailDispatchTotal counts notification mail attempts by status
	MailDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "dispatch_total",
			Help:      "Total number of notification mail dispatch attempts by status",
		},
		[]string{"status"},
	)

	// RecordsDeletedTotal counts deleted records by reason (erasure, retention)
	RecordsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "records",
			Name:      "deleted_total",
			Help:      "Total number of feedback records deleted by reason",
		},
		[]string{"reason"},
	)

	// ExportRowsTotal counts records contributed to exports
	ExportRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "rows_total",
			Help:      "Total number of feedback records written to exports",
		},
	)
)

// RecordSubmission increments the submission counter for outcome.
func RecordSubmission(outcome string) {
	SubmissionsTotal.WithLabelValues(outcome).Inc()
}

// RecordMail increments the mail counter.
func RecordMail(err error) {
	status := "sent"
	if err != nil {
		status = "failed"
	}
	MailDispatchTotal.WithLabelValues(status).Inc()
}

// RecordDeleted adds n deletions for reason.
func RecordDeleted(reason string, n int) {
	if n > 0 {
		RecordsDeletedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// TimeQuery starts a timer for operation; call the result when the query
// returns, typically via defer metrics.TimeQuery("create_feedback")().
func TimeQuery(operation string) func() {
	t := prometheus.NewTimer(DBQueryDuration.WithLabelValues(operation))
	return func() { t.ObserveDuration() }
}

// Middleware records HTTP metrics labelled by chi route pattern, so
// record ids and form ids do not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		HTTPRequestsInFlight.Inc()
		began := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer func() {
			HTTPRequestsInFlight.Dec()
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := routePattern(r)
			HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
			HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
		}()
		next.ServeHTTP(ww, r)
	})
}

// routePattern reports unmatched requests as "unmatched" rather than by
// their raw path.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// Handler serves the default registry in the exposition format
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
}
