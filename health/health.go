// Package health aggregates liveness information from the realtime
// stack into a single ok/degraded/down report.
package health

import (
	"time"

	"github.com/jaajung-kjs/realtime-core/component"
)

// Status health status enum
type Status string

const (
	// StatusHealthy fully operational
	StatusHealthy Status = "healthy"
	// StatusDegraded partially operational (reconnecting, suspended)
	StatusDegraded Status = "degraded"
	// StatusUnhealthy not operational
	StatusUnhealthy Status = "unhealthy"
)

// Checker is an alias for component.HealthChecker
type Checker = component.HealthChecker

// Degraded builds a degraded-state marker error (see
// component.DegradedError); re-exported for checker implementations
// and tests.
var Degraded = component.Degraded

// IsDegraded reports whether err marks a degraded state
var IsDegraded = component.IsDegraded

// CheckResult result of one check item
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response aggregated health report
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsHealthy reports whether the whole stack is healthy
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsDegraded reports whether the stack is degraded
func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}
