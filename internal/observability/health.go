package observability

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check for a component
type HealthCheck struct {
	Name        string                 `json:"name"`
	Status      HealthStatus           `json:"status"`
	Message     string                 `json:"message,omitempty"`
	LastChecked time.Time              `json:"last_checked"`
	DurationMS  int64                  `json:"duration_ms"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// HealthCheckFunc is a function that performs a health check
type HealthCheckFunc func(context.Context) *HealthCheck

// HealthChecker runs registered checks and caches each result for a short
// time so that frequent probes do not hammer dependencies.
type HealthChecker struct {
	checks  map[string]HealthCheckFunc
	cache   map[string]*HealthCheck
	mu      sync.Mutex
	ttl     time.Duration
	service string
	version string
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		checks:  make(map[string]HealthCheckFunc),
		cache:   make(map[string]*HealthCheck),
		ttl:     5 * time.Second,
		service: service,
		version: version,
	}
}

// Register registers a health check
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checks[name] = check
	delete(hc.cache, name)
}

// Check performs all health checks, reusing results younger than the TTL.
func (hc *HealthChecker) Check(ctx context.Context) map[string]*HealthCheck {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	results := make(map[string]*HealthCheck, len(hc.checks))
	now := time.Now()

	for name, checkFunc := range hc.checks {
		if cached, exists := hc.cache[name]; exists && now.Sub(cached.LastChecked) < hc.ttl {
			results[name] = cached
			continue
		}

		result := checkFunc(ctx)
		result.LastChecked = time.Now()
		hc.cache[name] = result
		results[name] = result
	}

	return results
}

// overallStatus is unhealthy if any check is, else degraded if any check is.
func overallStatus(checks map[string]*HealthCheck) HealthStatus {
	status := HealthStatusHealthy
	for _, check := range checks {
		switch check.Status {
		case HealthStatusUnhealthy:
			return HealthStatusUnhealthy
		case HealthStatusDegraded:
			status = HealthStatusDegraded
		}
	}
	return status
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status    HealthStatus            `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Checks    map[string]*HealthCheck `json:"checks"`
	Metadata  map[string]interface{}  `json:"metadata,omitempty"`
}

// GetHealthResponse returns a complete health response
func (hc *HealthChecker) GetHealthResponse(ctx context.Context) *HealthResponse {
	checks := hc.Check(ctx)

	return &HealthResponse{
		Status:    overallStatus(checks),
		Timestamp: time.Now(),
		Checks:    checks,
		Metadata: map[string]interface{}{
			"version": hc.version,
			"service": hc.service,
		},
	}
}

// pingCheck builds a check that calls ping under timeout and reports
// failureStatus when it errors.
func pingCheck(name, label string, timeout time.Duration, failureStatus HealthStatus, ping func(context.Context) error) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		start := time.Now()

		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := ping(ctx)
		duration := time.Since(start)

		if err != nil {
			return &HealthCheck{
				Name:       name,
				Status:     failureStatus,
				Message:    fmt.Sprintf("%s unavailable: %v", label, err),
				DurationMS: duration.Milliseconds(),
			}
		}

		return &HealthCheck{
			Name:       name,
			Status:     HealthStatusHealthy,
			Message:    fmt.Sprintf("%s available", label),
			DurationMS: duration.Milliseconds(),
		}
	}
}

// DatabaseHealthCheck reports the viewpoint datastore. Searches cannot run
// without it.
func DatabaseHealthCheck(pingFunc func(context.Context) error) HealthCheckFunc {
	return pingCheck("database", "Database", 2*time.Second, HealthStatusUnhealthy, pingFunc)
}

// RedisHealthCheck reports the result cache. A missing cache only slows
// searches down.
func RedisHealthCheck(pingFunc func(context.Context) error) HealthCheckFunc {
	return pingCheck("redis", "Result cache", 2*time.Second, HealthStatusDegraded, pingFunc)
}

// SynthesisHealthCheck reports the generative service. When it is down every
// search takes the fallback path.
func SynthesisHealthCheck(stateFunc func(context.Context) error) HealthCheckFunc {
	return pingCheck("synthesis", "Query synthesis", time.Second, HealthStatusDegraded, stateFunc)
}

// VocabularyHealthCheck reports the active vocabulary version.
func VocabularyHealthCheck(versionFunc func() (version string, tags int)) HealthCheckFunc {
	return func(ctx context.Context) *HealthCheck {
		version, tags := versionFunc()
		if tags == 0 {
			return &HealthCheck{
				Name:    "vocabulary",
				Status:  HealthStatusDegraded,
				Message: "Vocabulary is empty; every query tag will be dropped",
				Metadata: map[string]interface{}{
					"version": version,
				},
			}
		}
		return &HealthCheck{
			Name:    "vocabulary",
			Status:  HealthStatusHealthy,
			Message: "Vocabulary loaded",
			Metadata: map[string]interface{}{
				"version": version,
				"tags":    tags,
			},
		}
	}
}
