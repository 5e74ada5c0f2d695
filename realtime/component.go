package realtime

import (
	"context"
	"fmt"

	"github.com/jaajung-kjs/realtime-core/component"
	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/transport"
)

// Component wraps the hub for the component registry.
type Component struct {
	config     Config
	hub        *Hub
	connection *connection.Component
	transport  *transport.Component
	logger     *logger.CtxZapLogger
}

// NewComponent creates the hub component over the connection and
// transport components.
func NewComponent(conn *connection.Component, tr *transport.Component) *Component {
	return &Component{
		connection: conn,
		transport:  tr,
		logger:     logger.GetLogger("realtime"),
	}
}

// Name implements component.Component
func (c *Component) Name() string {
	return component.ComponentHub
}

// DependsOn implements component.Component
func (c *Component) DependsOn() []string {
	return []string{component.ComponentTransport, component.ComponentConnection}
}

// Init implements component.Component
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	if loader.IsSet("realtime") {
		if err := loader.UnmarshalKey("realtime", &c.config); err != nil {
			return fmt.Errorf("read realtime config: %w", err)
		}
	}
	c.config.ApplyDefaults()
	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("invalid realtime config: %w", err)
	}

	c.hub = NewHub(c.config, c.connection.GetCore(), c.transport.GetTransport())
	return nil
}

// Start implements component.Component
func (c *Component) Start(ctx context.Context) error {
	return c.hub.Start()
}

// Stop implements component.Component
func (c *Component) Stop(ctx context.Context) error {
	if c.hub != nil {
		return c.hub.Close()
	}
	return nil
}

// GetHub returns the hub
func (c *Component) GetHub() *Hub {
	return c.hub
}

// GetHealthChecker implements component.HealthCheckProvider
func (c *Component) GetHealthChecker() component.HealthChecker {
	if c.hub == nil {
		return nil
	}
	return NewHealthChecker(c.hub)
}
