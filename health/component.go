package health

import (
	"context"
	"time"

	"github.com/jaajung-kjs/realtime-core/component"
	"github.com/jaajung-kjs/realtime-core/logger"
	"go.uber.org/zap"
)

// Component plugs the aggregator into the component lifecycle. Other
// components expose their checkers through HealthCheckProvider and are
// collected at Start, after everything below is initialized.
type Component struct {
	aggregator *Aggregator
	config     Config
	logger     *logger.CtxZapLogger
	providers  []component.HealthCheckProvider
}

// NewComponent creates the health component over the given providers
func NewComponent(providers ...component.HealthCheckProvider) *Component {
	return &Component{
		logger:    logger.GetLogger("health"),
		providers: providers,
	}
}

// Name implements component.Component
func (c *Component) Name() string {
	return component.ComponentHealth
}

// DependsOn implements component.Component
func (c *Component) DependsOn() []string {
	return []string{
		"optional:" + component.ComponentConnection,
		"optional:" + component.ComponentHub,
		"optional:" + component.ComponentFeatures,
	}
}

// Init implements component.Component
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.config = DefaultConfig()
	if loader.IsSet("health") {
		if err := loader.UnmarshalKey("health", &c.config); err != nil {
			c.logger.WarnCtx(ctx, "invalid health config, using defaults", zap.Error(err))
		}
	}

	if !c.config.Enabled {
		c.logger.InfoCtx(ctx, "health checks disabled")
		return nil
	}

	c.aggregator = NewAggregator(c.config.Timeout)
	c.aggregator.SetMetadata("service", "realtime-core")

	c.logger.InfoCtx(ctx, "✅ health component initialized",
		zap.Duration("timeout", c.config.Timeout))
	return nil
}

// Start implements component.Component
func (c *Component) Start(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	for _, provider := range c.providers {
		checker := provider.GetHealthChecker()
		if checker == nil {
			continue
		}
		c.aggregator.Register(checker)
		c.logger.DebugCtx(ctx, "registered health checker",
			zap.String("name", checker.Name()))
	}
	return nil
}

// Stop implements component.Component
func (c *Component) Stop(ctx context.Context) error {
	return nil
}

// GetAggregator returns the aggregator, nil when disabled
func (c *Component) GetAggregator() *Aggregator {
	return c.aggregator
}

// IsEnabled reports whether health checks are enabled
func (c *Component) IsEnabled() bool {
	return c.config.Enabled
}

// Check runs all checks; a disabled component reports healthy
func (c *Component) Check(ctx context.Context) *Response {
	if !c.config.Enabled || c.aggregator == nil {
		return &Response{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
			Checks:    make(map[string]CheckResult),
			Metadata:  map[string]interface{}{"enabled": false},
		}
	}
	return c.aggregator.Check(ctx)
}
