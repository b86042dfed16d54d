// Package health provides health check endpoints for trackcache.
//
//   - /health/live: Liveness probe (is the process running?)
//   - /health/ready: Readiness probe (can the storage backend be reached?)
//   - /health: Overall status only (for load balancers)
//   - /health/detailed: Status with per-component checks
//
// The detailed check returns JSON such as:
//
//	{
//	  "status": "healthy",
//	  "checks": {
//	    "storage": {"status": "healthy"},
//	    "jobs": {"status": "degraded", "message": "job queue 95% full"}
//	  }
//	}
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Status represents the overall health status.
type Status string

const (
	// StatusHealthy indicates all checks passed.
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates some checks failed but core functionality works.
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates critical failures.
	StatusUnhealthy Status = "unhealthy"
)

// Check represents a single health check result.
type Check struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthStatus represents the complete health status of the system.
type HealthStatus struct {
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	Status    Status           `json:"status"`
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Queue exposes the job queue fill level.
type Queue interface {
	Pending() int
	Capacity() int
}

// Checker performs health checks on the system.
type Checker struct {
	cacheExpiry  time.Time
	storage      Pinger
	queue        Queue
	cachedStatus *HealthStatus
	cacheTTL     time.Duration
	mu           sync.RWMutex
}

// NewChecker creates a new health checker. queue may be nil.
func NewChecker(storage Pinger, queue Queue) *Checker {
	return &Checker{
		storage:  storage,
		queue:    queue,
		cacheTTL: 5 * time.Second, // Cache health checks for 5 seconds
	}
}

// Check performs all health checks and returns the overall status.
func (c *Checker) Check(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	if c.cachedStatus != nil && time.Now().Before(c.cacheExpiry) {
		status := c.cachedStatus
		c.mu.RUnlock()
		return status
	}
	c.mu.RUnlock()

	checks := map[string]Check{
		"storage": c.CheckStorage(ctx),
		"jobs":    c.CheckJobs(),
	}

	healthStatus := &HealthStatus{
		Status:    determineOverallStatus(checks),
		Checks:    checks,
		Timestamp: time.Now(),
	}

	c.mu.Lock()
	c.cachedStatus = healthStatus
	c.cacheExpiry = time.Now().Add(c.cacheTTL)
	c.mu.Unlock()

	return healthStatus
}

// CheckStorage pings the storage backend.
func (c *Checker) CheckStorage(ctx context.Context) Check {
	if c.storage == nil {
		return Check{
			Status:  StatusUnhealthy,
			Message: "storage backend not initialized",
		}
	}

	if err := c.storage.Ping(ctx); err != nil {
		return Check{
			Status:  StatusUnhealthy,
			Message: "storage check failed: " + err.Error(),
		}
	}

	return Check{
		Status:  StatusHealthy,
		Message: "storage is operational",
	}
}

// CheckJobs reports job queue saturation. A nearly full queue means
// population work is being dropped.
func (c *Checker) CheckJobs() Check {
	if c.queue == nil || c.queue.Capacity() == 0 {
		return Check{Status: StatusHealthy}
	}

	usagePercent := float64(c.queue.Pending()) / float64(c.queue.Capacity()) * 100
	if usagePercent >= 90 {
		return Check{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("job queue %.0f%% full", usagePercent),
		}
	}

	return Check{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%d jobs queued", c.queue.Pending()),
	}
}

// IsReady checks if the service is ready to accept requests.
func (c *Checker) IsReady(ctx context.Context) bool {
	return c.CheckStorage(ctx).Status == StatusHealthy
}

// IsLive checks if the service is alive.
func (c *Checker) IsLive(ctx context.Context) bool {
	return true
}

func determineOverallStatus(checks map[string]Check) Status {
	hasDegraded := false

	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}

// Handler creates HTTP handlers for health endpoints.
type Handler struct {
	checker *Checker
}

// NewHandler creates a new health handler.
func NewHandler(checker *Checker) *Handler {
	return &Handler{checker: checker}
}

// HealthHandler handles basic health check requests (for load balancers).
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")

	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": string(status.Status),
	})
}

// LivenessHandler handles liveness probe requests.
func (h *Handler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.checker.IsLive(r.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ok"}`))
	}
}

// ReadinessHandler handles readiness probe requests.
func (h *Handler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.checker.IsReady(r.Context()) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
	}
}

// DetailedHandler handles detailed health check requests.
func (h *Handler) DetailedHandler(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Check(r.Context())

	w.Header().Set("Content-Type", "application/json")

	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		// Degraded still serves traffic
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(status)
}
