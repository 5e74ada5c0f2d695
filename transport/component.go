package transport

import (
	"context"
	"fmt"

	"github.com/jaajung-kjs/realtime-core/component"
	"github.com/jaajung-kjs/realtime-core/logger"
	"go.uber.org/zap"
)

// Component wraps the websocket transport for the component registry.
// It only builds the client; the connection supervisor decides when to
// dial.
type Component struct {
	config Config
	ws     *WSTransport
	custom Transport
	logger *logger.CtxZapLogger
}

// ComponentOption configures the transport component
type ComponentOption func(*Component)

// WithTransport substitutes the built transport, used by tests and
// embedders that bring their own backend client.
func WithTransport(tr Transport) ComponentOption {
	return func(c *Component) {
		c.custom = tr
	}
}

// NewComponent creates the transport component
func NewComponent(opts ...ComponentOption) *Component {
	c := &Component{
		logger: logger.GetLogger("transport"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements component.Component
func (c *Component) Name() string {
	return component.ComponentTransport
}

// DependsOn implements component.Component
func (c *Component) DependsOn() []string {
	return nil
}

// Init implements component.Component
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	if c.custom != nil {
		c.logger.DebugCtx(ctx, "using injected transport")
		return nil
	}

	if err := loader.UnmarshalKey("transport", &c.config); err != nil {
		return fmt.Errorf("read transport config: %w", err)
	}
	c.config.ApplyDefaults()
	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("invalid transport config: %w", err)
	}

	c.ws = NewWSTransport(c.config)
	c.logger.InfoCtx(ctx, "✅ transport initialized", zap.String("url", c.config.URL))
	return nil
}

// Start implements component.Component. The connection supervisor
// owns Open, so nothing happens here.
func (c *Component) Start(ctx context.Context) error {
	return nil
}

// Stop implements component.Component
func (c *Component) Stop(ctx context.Context) error {
	if tr := c.GetTransport(); tr != nil {
		return tr.Close()
	}
	return nil
}

// GetTransport returns the wrapped transport
func (c *Component) GetTransport() Transport {
	if c.custom != nil {
		return c.custom
	}
	return c.ws
}
