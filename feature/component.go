package feature

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jaajung-kjs/realtime-core/component"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/realtime"
	"go.uber.org/zap"
)

// Component wraps the built-in feature managers for the component
// registry. Initialization runs in the background: a backend that is
// slow to become ready must not block application startup.
type Component struct {
	config Config
	hub    *realtime.Component

	invalidate Invalidator
	managers   []*Manager

	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *logger.CtxZapLogger
}

// NewComponent creates the features component. A nil invalidator logs
// invalidated keys instead of pushing them anywhere.
func NewComponent(hub *realtime.Component, invalidate Invalidator) *Component {
	return &Component{
		hub:        hub,
		invalidate: invalidate,
		logger:     logger.GetLogger("feature"),
	}
}

// Name implements component.Component
func (c *Component) Name() string {
	return component.ComponentFeatures
}

// DependsOn implements component.Component
func (c *Component) DependsOn() []string {
	return []string{component.ComponentHub}
}

// Init implements component.Component
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	if loader.IsSet("feature") {
		if err := loader.UnmarshalKey("feature", &c.config); err != nil {
			return fmt.Errorf("read feature config: %w", err)
		}
	}
	c.config.ApplyDefaults()

	invalidate := c.invalidate
	if invalidate == nil {
		invalidate = func(key string) {
			c.logger.Debug("cache invalidated", zap.String("key", key))
		}
	}

	hub := c.hub.GetHub()
	c.managers = []*Manager{
		NewMessagesManager(hub, invalidate, c.config),
		NewNotificationsManager(hub, invalidate, c.config),
		NewContentManager(hub, invalidate, c.config),
	}
	return nil
}

// Start implements component.Component
func (c *Component) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for _, mgr := range c.managers {
		m := mgr
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := m.Initialize(runCtx); err != nil {
				c.logger.Warn("⚠️ feature initialization gave up",
					zap.String("feature", m.Name()),
					zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop implements component.Component
func (c *Component) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	for _, mgr := range c.managers {
		mgr.Shutdown()
	}
	c.wg.Wait()
	return nil
}

// Managers returns the wrapped feature managers
func (c *Component) Managers() []*Manager {
	return c.managers
}

// GetHealthChecker implements component.HealthCheckProvider
func (c *Component) GetHealthChecker() component.HealthChecker {
	if len(c.managers) == 0 {
		return nil
	}
	return &compositeChecker{managers: c.managers}
}

// compositeChecker folds all feature managers into one check item;
// the worst state wins.
type compositeChecker struct {
	managers []*Manager
}

func (c *compositeChecker) Name() string {
	return "features"
}

func (c *compositeChecker) Check(ctx context.Context) error {
	var failed, pending []string
	for _, mgr := range c.managers {
		switch mgr.State() {
		case StateActive:
		case StateFailed:
			failed = append(failed, mgr.Name())
		default:
			pending = append(pending, mgr.Name())
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("features failed: %s", strings.Join(failed, ", "))
	}
	if len(pending) > 0 {
		return component.Degraded("features initializing: " + strings.Join(pending, ", "))
	}
	return nil
}
