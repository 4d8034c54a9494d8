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
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// Simulation metrics
	simulationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "simulation_runs_total",
			Help: "Total number of simulation runs by outcome",
		},
		[]string{"status"},
	)

	simulationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simulation_run_duration_seconds",
			Help:    "End-to-end simulation run duration in seconds",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
	)

	simulationCohortSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simulation_cohort_size",
			Help:    "Cohort size of completed simulation runs",
			Buckets: prometheus.ExponentialBuckets(10, 10, 6),
		},
	)

	abstractionCycles = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "simulation_abstraction_cycles",
			Help:    "Abstraction cycles until a run converged",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)

	patientsAbstractedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simulation_patients_abstracted_total",
			Help: "Total number of patients abstracted across all runs",
		},
	)

	consistencyViolationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "simulation_consistency_violations_total",
			Help: "Total number of consistency violations reported",
		},
	)

	warehousePublishDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warehouse_publish_duration_seconds",
			Help:    "Cohort publish duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"status"},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Simulation metric helpers ---

// RecordRun records a finished (or failed) simulation run
func RecordRun(status string, duration time.Duration, cohortSize int) {
	simulationRunsTotal.WithLabelValues(status).Inc()
	simulationRunDuration.Observe(duration.Seconds())
	if cohortSize > 0 {
		simulationCohortSize.Observe(float64(cohortSize))
	}
}

// RecordConvergence records how many cycles a run needed to converge
func RecordConvergence(cycles int) {
	abstractionCycles.Observe(float64(cycles))
}

// AddPatientsAbstracted counts patients processed by the abstraction loop
func AddPatientsAbstracted(n int) {
	patientsAbstractedTotal.Add(float64(n))
}

// AddConsistencyViolations counts reported consistency violations
func AddConsistencyViolations(n int) {
	consistencyViolationsTotal.Add(float64(n))
}

// RecordWarehousePublish records a cohort publish to the research warehouse
func RecordWarehousePublish(status string, duration time.Duration) {
	warehousePublishDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
