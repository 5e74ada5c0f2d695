package feature

import (
	"context"
	"fmt"

	"github.com/jaajung-kjs/realtime-core/component"
)

// HealthChecker reports one manager's subscription state for the
// health aggregator. Failed means the retry budget is exhausted and
// the feature runs without live updates.
type HealthChecker struct {
	mgr *Manager
}

// NewHealthChecker creates a checker over a feature manager
func NewHealthChecker(mgr *Manager) *HealthChecker {
	return &HealthChecker{mgr: mgr}
}

// Name implements component.HealthChecker
func (h *HealthChecker) Name() string {
	return "feature:" + h.mgr.Name()
}

// Check implements component.HealthChecker
func (h *HealthChecker) Check(ctx context.Context) error {
	switch st := h.mgr.State(); st {
	case StateActive:
		return nil
	case StateFailed:
		return fmt.Errorf("feature %s failed, live updates disabled", h.mgr.Name())
	default:
		return component.Degraded(fmt.Sprintf("feature %s %s", h.mgr.Name(), st))
	}
}
