package realtime

import (
	"context"

	"github.com/jaajung-kjs/realtime-core/component"
)

// HealthChecker reports hub readiness for the health aggregator. A hub
// that is up but not ready is degraded: dispatch resumes once the
// connection comes back.
type HealthChecker struct {
	hub *Hub
}

// NewHealthChecker creates a checker over the hub
func NewHealthChecker(hub *Hub) *HealthChecker {
	return &HealthChecker{hub: hub}
}

// Name implements component.HealthChecker
func (h *HealthChecker) Name() string {
	return "hub"
}

// Check implements component.HealthChecker
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.hub.IsReady() {
		return nil
	}
	return component.Degraded("hub not ready")
}
