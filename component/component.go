// Package component defines the lifecycle contract shared by the
// long-lived parts of the realtime stack. It sits at the bottom of the
// package graph and imports no business packages.
package component

import (
	"context"
	"errors"
)

// Component unified lifecycle: Init -> Start -> Stop
//
// The registry topologically sorts components by DependsOn and drives
// the three phases in dependency order.
type Component interface {
	// Name unique component identifier, used for dependency edges
	Name() string

	// DependsOn names of components that must come up first.
	// An "optional:" prefix marks a dependency that is skipped when the
	// named component is not registered:
	//
	//   return []string{
	//       "transport",        // hard: missing is an error
	//       "optional:health",  // soft: missing is skipped
	//   }
	DependsOn() []string

	// Init creates resources from configuration. No outward activity
	// yet: nothing dials, nothing subscribes.
	Init(ctx context.Context, loader ConfigLoader) error

	// Start begins outward activity (dialing, heartbeats, subscribing)
	Start(ctx context.Context) error

	// Stop releases resources. Must be idempotent.
	Stop(ctx context.Context) error
}

// HealthChecker optional capability a component may expose.
// Check returns nil when healthy.
type HealthChecker interface {
	Check(ctx context.Context) error

	// Name the check item name (e.g. "connection", "hub")
	Name() string
}

// HealthCheckProvider lets a component hand out its checker so the
// health aggregator can discover it without a type dependency.
type HealthCheckProvider interface {
	GetHealthChecker() HealthChecker
}

// DegradedError marks a health check result as degraded rather than
// down. Checkers return it for transitional states that need no
// operator action yet.
type DegradedError struct {
	Reason string
}

func (e *DegradedError) Error() string {
	return "degraded: " + e.Reason
}

// Degraded builds a DegradedError
func Degraded(reason string) error {
	return &DegradedError{Reason: reason}
}

// IsDegraded reports whether err marks a degraded state
func IsDegraded(err error) bool {
	var de *DegradedError
	return errors.As(err, &de)
}

// Names of the built-in components
const (
	ComponentTransport  = "transport"
	ComponentConnection = "connection"
	ComponentHub        = "hub"
	ComponentFeatures   = "features"
	ComponentHealth     = "health"
)
