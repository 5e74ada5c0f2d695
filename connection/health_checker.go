package connection

import (
	"context"
	"fmt"

	"github.com/jaajung-kjs/realtime-core/component"
)

// HealthChecker reports the supervisor state for the health
// aggregator. Transitional states (connecting, suspended) are
// degraded; a dead connection or a tripped connect breaker is
// unhealthy.
type HealthChecker struct {
	core *Core
}

// NewHealthChecker creates a checker over the connection core
func NewHealthChecker(core *Core) *HealthChecker {
	return &HealthChecker{core: core}
}

// Name implements component.HealthChecker
func (h *HealthChecker) Name() string {
	return "connection"
}

// Check implements component.HealthChecker
func (h *HealthChecker) Check(ctx context.Context) error {
	st := h.core.Status()
	switch st.State {
	case StateConnected:
		return nil
	case StateConnecting:
		return component.Degraded(fmt.Sprintf("connecting, attempt %d", st.ReconnectAttempts))
	case StateSuspended:
		return component.Degraded("suspended while backgrounded")
	default:
		if st.LastError != nil {
			return fmt.Errorf("connection %s: %w", st.State, st.LastError)
		}
		return fmt.Errorf("connection %s", st.State)
	}
}
