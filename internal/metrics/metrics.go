// Package metrics provides Prometheus metrics collection for trackcache.
//
// The package exposes metrics at /metrics:
//
// Request Metrics:
//   - trackcache_requests_total: Total API requests by route and status
//   - trackcache_request_duration_seconds: Request latency histogram
//
// Cache Metrics:
//   - trackcache_cache_lookups_total: Lookups by result (hit/miss/error)
//   - trackcache_cache_evictions_total: Evictions by outcome
//   - trackcache_cache_writes_total: Entry writes by kind
//   - trackcache_backend_errors_total: Storage backend failures by operation
//
// Job Metrics:
//   - trackcache_jobs_total: Finished jobs by name and outcome
//   - trackcache_job_duration_seconds: Job run time histogram
//   - trackcache_jobs_queued: Jobs waiting for a worker
//   - trackcache_heal_submissions_total: Self-heal resubmissions by field
//   - trackcache_priming_jobs_total / trackcache_priming_units_total
//
// Provider Metrics:
//   - trackcache_provider_requests_total: Outbound lookups by provider and outcome
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts API requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks request duration in seconds
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackcache_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// CacheLookups counts coordinator reads by result
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_cache_lookups_total",
			Help: "Cache lookups by result",
		},
		[]string{"result"},
	)

	// CacheEvictions counts eviction attempts by outcome
	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_cache_evictions_total",
			Help: "Eviction attempts by outcome",
		},
		[]string{"outcome"},
	)

	// CacheWrites counts entry writes
	CacheWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_cache_writes_total",
			Help: "Entry writes by kind",
		},
		[]string{"kind"},
	)

	// BackendErrors counts storage failures
	BackendErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_backend_errors_total",
			Help: "Storage backend errors by operation",
		},
		[]string{"operation"},
	)

	// JobsTotal counts finished jobs
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_jobs_total",
			Help: "Finished jobs by name and outcome",
		},
		[]string{"job", "outcome"},
	)

	// JobDuration tracks job run time
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trackcache_job_duration_seconds",
			Help:    "Job run time in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"job"},
	)

	// JobsQueued tracks jobs waiting for a worker
	JobsQueued = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "trackcache_jobs_queued",
			Help: "Jobs waiting for a worker",
		},
	)

	// JobsRejected counts submissions refused by the dispatcher
	JobsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_jobs_rejected_total",
			Help: "Job submissions rejected by reason",
		},
		[]string{"reason"},
	)

	// HealSubmissions counts self-heal resubmissions
	HealSubmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_heal_submissions_total",
			Help: "Self-heal job resubmissions by field",
		},
		[]string{"field"},
	)

	// PrimingJobs counts started priming jobs
	PrimingJobs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trackcache_priming_jobs_total",
			Help: "Priming jobs started",
		},
	)

	// PrimingUnits counts priming units by state
	PrimingUnits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_priming_units_total",
			Help: "Priming units by state",
		},
		[]string{"state"},
	)

	// ProviderRequests counts outbound lookups
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trackcache_provider_requests_total",
			Help: "Outbound provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// BuildInfo carries the running version
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "trackcache_build_info",
			Help: "Build information",
		},
		[]string{"version"},
	)
)

// Version is set at build time
var Version = "dev"

// Init publishes build information
func Init() {
	BuildInfo.WithLabelValues(Version).Set(1)
}

// RecordRequest records an API request with its route, status, and duration
func RecordRequest(method, route string, status int, duration time.Duration) {
	RequestsTotal.WithLabelValues(method, route, statusCodeToString(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordCacheHit increments the cache hit counter
func RecordCacheHit() {
	CacheLookups.WithLabelValues("hit").Inc()
}

// RecordCacheMiss increments the cache miss counter
func RecordCacheMiss() {
	CacheLookups.WithLabelValues("miss").Inc()
}

// RecordCacheError counts a lookup that degraded to a miss
func RecordCacheError() {
	CacheLookups.WithLabelValues("error").Inc()
}

// RecordEviction records an eviction outcome. outcome is one of
// "evicted", "pruned", "no_candidate" or "error".
func RecordEviction(outcome string) {
	CacheEvictions.WithLabelValues(outcome).Inc()
}

// RecordCacheWrite records an entry write ("create" or "update")
func RecordCacheWrite(kind string) {
	CacheWrites.WithLabelValues(kind).Inc()
}

// RecordBackendError records a storage failure
func RecordBackendError(operation string) {
	BackendErrors.WithLabelValues(operation).Inc()
}

// RecordJob records a finished job
func RecordJob(name string, err error, panicked bool, duration time.Duration) {
	outcome := "success"
	switch {
	case panicked:
		outcome = "panic"
	case err != nil:
		outcome = "error"
	}
	JobsTotal.WithLabelValues(name, outcome).Inc()
	JobDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// SetJobsQueued sets the queue depth gauge
func SetJobsQueued(n int) {
	JobsQueued.Set(float64(n))
}

// RecordJobRejected records a refused submission
func RecordJobRejected(reason string) {
	JobsRejected.WithLabelValues(reason).Inc()
}

// RecordHeal records a self-heal resubmission
func RecordHeal(field string) {
	HealSubmissions.WithLabelValues(field).Inc()
}

// RecordPrimingJob records a started priming job and its unit counts
func RecordPrimingJob(dispatched, skipped int) {
	PrimingJobs.Inc()
	PrimingUnits.WithLabelValues("dispatched").Add(float64(dispatched))
	PrimingUnits.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordPrimingCompletion records a finished priming unit
func RecordPrimingCompletion() {
	PrimingUnits.WithLabelValues("completed").Inc()
}

// RecordProviderRequest records an outbound lookup
func RecordProviderRequest(provider string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
}

// statusCodeToString converts HTTP status code to a string category
func statusCodeToString(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
