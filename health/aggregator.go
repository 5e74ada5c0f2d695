package health

import (
	"context"
	"sync"
	"time"
)

// Aggregator runs all registered checkers concurrently and folds the
// results into one Response. The worst individual status wins.
type Aggregator struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
	metadata map[string]interface{}
}

// NewAggregator creates a health check aggregator
func NewAggregator(timeout time.Duration) *Aggregator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Aggregator{
		checkers: make([]Checker, 0),
		timeout:  timeout,
		metadata: make(map[string]interface{}),
	}
}

// Register adds a check item
func (a *Aggregator) Register(checker Checker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.checkers = append(a.checkers, checker)
}

// SetMetadata attaches a metadata entry to every Response
func (a *Aggregator) SetMetadata(key string, value interface{}) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.metadata[key] = value
}

// Check runs all checks concurrently within the aggregator timeout
func (a *Aggregator) Check(ctx context.Context) *Response {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.mu.RLock()
	checkers := make([]Checker, len(a.checkers))
	copy(checkers, a.checkers)
	metadata := make(map[string]interface{}, len(a.metadata))
	for k, v := range a.metadata {
		metadata[k] = v
	}
	a.mu.RUnlock()

	results := make(chan CheckResult, len(checkers))
	for _, checker := range checkers {
		go func(c Checker) {
			results <- a.checkOne(checkCtx, c)
		}(checker)
	}

	checks := make(map[string]CheckResult)
	for range checkers {
		result := <-results
		checks[result.Name] = result
	}

	return &Response{
		Status:    a.calculateOverallStatus(checks),
		Timestamp: time.Now(),
		Duration:  time.Since(start),
		Checks:    checks,
		Metadata:  metadata,
	}
}

// checkOne runs a single checker and classifies its error
func (a *Aggregator) checkOne(ctx context.Context, checker Checker) CheckResult {
	start := time.Now()
	result := CheckResult{
		Name:      checker.Name(),
		Timestamp: start,
	}

	err := checker.Check(ctx)
	result.Duration = time.Since(start)

	switch {
	case err == nil:
		result.Status = StatusHealthy
		result.Message = "OK"
	case IsDegraded(err):
		result.Status = StatusDegraded
		result.Message = err.Error()
	default:
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "health check failed"
	}

	return result
}

// calculateOverallStatus folds individual results; unhealthy beats
// degraded beats healthy.
func (a *Aggregator) calculateOverallStatus(checks map[string]CheckResult) Status {
	hasUnhealthy := false
	hasDegraded := false

	for _, result := range checks {
		switch result.Status {
		case StatusUnhealthy:
			hasUnhealthy = true
		case StatusDegraded:
			hasDegraded = true
		}
	}

	if hasUnhealthy {
		return StatusUnhealthy
	}
	if hasDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
