package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/jaajung-kjs/realtime-core/component"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/transport"
	"go.uber.org/zap"
)

// Component wraps the connection supervisor for the component
// registry.
type Component struct {
	config    Config
	core      *Core
	transport *transport.Component
	logger    *logger.CtxZapLogger
}

// NewComponent creates the connection component over the transport
// component.
func NewComponent(tr *transport.Component) *Component {
	return &Component{
		transport: tr,
		logger:    logger.GetLogger("connection"),
	}
}

// Name implements component.Component
func (c *Component) Name() string {
	return component.ComponentConnection
}

// DependsOn implements component.Component
func (c *Component) DependsOn() []string {
	return []string{component.ComponentTransport}
}

// Init implements component.Component
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	if loader.IsSet("connection") {
		if err := loader.UnmarshalKey("connection", &c.config); err != nil {
			return fmt.Errorf("read connection config: %w", err)
		}
	}
	c.config.ApplyDefaults()
	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("invalid connection config: %w", err)
	}

	c.core = NewCore(c.config, c.transport.GetTransport())
	return nil
}

// Start implements component.Component. A failed first dial is not
// fatal: the core keeps retrying under its backoff and breaker.
func (c *Component) Start(ctx context.Context) error {
	if err := c.core.Connect(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		c.logger.WarnCtx(ctx, "⚠️ initial connect failed, retrying in background", zap.Error(err))
	}
	return nil
}

// Stop implements component.Component
func (c *Component) Stop(ctx context.Context) error {
	if c.core != nil {
		return c.core.Close()
	}
	return nil
}

// GetCore returns the connection supervisor
func (c *Component) GetCore() *Core {
	return c.core
}

// GetHealthChecker implements component.HealthCheckProvider
func (c *Component) GetHealthChecker() component.HealthChecker {
	if c.core == nil {
		return nil
	}
	return NewHealthChecker(c.core)
}
