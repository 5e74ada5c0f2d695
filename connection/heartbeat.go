package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jaajung-kjs/realtime-core/breaker"
	"github.com/jaajung-kjs/realtime-core/transport"
	"go.uber.org/zap"
)

// heartbeatRunner holds the gocron scheduler driving the liveness probe
type heartbeatRunner struct {
	mu        sync.Mutex
	scheduler gocron.Scheduler
}

func (h *heartbeatRunner) replace(s gocron.Scheduler) {
	h.mu.Lock()
	old := h.scheduler
	h.scheduler = s
	h.mu.Unlock()
	if old != nil {
		_ = old.Shutdown()
	}
}

func (h *heartbeatRunner) stop() {
	h.replace(nil)
}

func (h *heartbeatRunner) running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.scheduler != nil
}

// startHeartbeat schedules the periodic probe for this generation
func (c *Core) startHeartbeat(gen int64) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	sched, err := gocron.NewScheduler(gocron.WithClock(c.clock))
	if err != nil {
		c.logger.Error("heartbeat scheduler init failed", zap.Error(err))
		return
	}
	_, err = sched.NewJob(
		gocron.DurationJob(c.config.HeartbeatInterval),
		gocron.NewTask(func() { c.heartbeatTick(gen) }),
	)
	if err != nil {
		c.logger.Error("heartbeat job init failed", zap.Error(err))
		_ = sched.Shutdown()
		return
	}
	sched.Start()
	c.heartbeat.replace(sched)
}

// ensureHeartbeat starts the probe if the runner is idle (fast resume
// of a suspended connection whose heartbeat is still ticking keeps it)
func (c *Core) ensureHeartbeat(gen int64) {
	if !c.heartbeat.running() {
		c.startHeartbeat(gen)
	}
}

// heartbeatTick runs one breaker-guarded liveness probe.
//
// A dead transport while visible triggers a full reconnect; while
// hidden it suspends the connection past the grace period. Repeated
// probe failures open the heartbeat breaker, which degrades the
// connection to error without tearing the transport down; the breaker's
// own half-open probe brings it back once the backend answers again.
func (c *Core) heartbeatTick(gen int64) {
	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return
	}
	state := c.status.State
	visible := c.status.Visible
	var hiddenFor time.Duration
	if !visible {
		hiddenFor = c.clock.Since(c.hiddenAt)
	}
	c.mu.Unlock()

	if state != StateConnected && state != StateSuspended && state != StateError {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.HeartbeatTimeout)
	defer cancel()

	err := c.heartbeatBreaker.Execute(ctx, func(ctx context.Context) error {
		return c.transport.Ping(ctx)
	})
	if err == nil {
		if state == StateSuspended || state == StateError {
			c.transitionGen(gen, func(s *Status) {
				s.State = StateConnected
				s.LastError = nil
			})
		}
		return
	}

	switch {
	case errors.Is(err, transport.ErrNotConnected):
		if visible {
			c.logger.Warn("transport lost, reconnecting", zap.Error(err))
			go c.restart(false)
			return
		}
		if hiddenFor >= c.config.SuspendGrace && state != StateSuspended {
			c.transitionGen(gen, func(s *Status) {
				s.State = StateSuspended
				s.LastError = err
			})
		}

	case errors.Is(err, breaker.ErrCircuitOpen):
		if state == StateConnected {
			c.logger.Warn("heartbeat breaker open, connection degraded")
			c.transitionGen(gen, func(s *Status) {
				s.State = StateError
				s.LastError = err
			})
		}

	default:
		c.logger.Warn("heartbeat probe failed", zap.Error(err))
		if !visible && hiddenFor >= c.config.SuspendGrace && state == StateConnected {
			c.transitionGen(gen, func(s *Status) {
				s.State = StateSuspended
				s.LastError = err
			})
		}
	}
}
