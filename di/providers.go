package di

import (
	"github.com/jaajung-kjs/realtime-core/component"
	"github.com/jaajung-kjs/realtime-core/config"
	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/jaajung-kjs/realtime-core/feature"
	"github.com/jaajung-kjs/realtime-core/health"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/realtime"
	"github.com/jaajung-kjs/realtime-core/transport"
	"github.com/samber/do/v2"
)

// ConfigOptions configuration bootstrap options
type ConfigOptions struct {
	// ConfigFile path to a config file; a missing file yields defaults
	ConfigFile string

	// EnvPrefix environment variable prefix (default REALTIME)
	EnvPrefix string

	// Defaults flat dot-keyed default values, lowest priority
	Defaults map[string]interface{}
}

// ProvideConfigLoader creates the config.Loader provider. Sources in
// ascending priority: defaults, file, environment.
func ProvideConfigLoader(opts ConfigOptions) func(do.Injector) (*config.Loader, error) {
	return func(i do.Injector) (*config.Loader, error) {
		if opts.EnvPrefix == "" {
			opts.EnvPrefix = "REALTIME"
		}

		loader := config.NewLoader()
		if len(opts.Defaults) > 0 {
			loader.AddSource(config.NewDefaultsSource(opts.Defaults))
		}
		if opts.ConfigFile != "" {
			loader.AddSource(config.NewFileSource(opts.ConfigFile, 10))
		}
		loader.AddSource(config.NewEnvSource(opts.EnvPrefix, 50))

		if err := loader.Load(); err != nil {
			return nil, err
		}
		return loader, nil
	}
}

// ProvideLoggerManager creates the logger.Manager provider.
// Falls back to defaults when the logger section is absent or broken.
func ProvideLoggerManager(i do.Injector) (*logger.Manager, error) {
	loader, err := do.Invoke[*config.Loader](i)
	if err != nil {
		return logger.NewManager(logger.DefaultManagerConfig()), nil
	}

	cfg := logger.DefaultManagerConfig()
	if loader.IsSet("logger") {
		if err := loader.UnmarshalKey("logger", &cfg); err != nil {
			return logger.NewManager(logger.DefaultManagerConfig()), nil
		}
	}
	cfg.ApplyDefaults()
	return logger.NewManager(cfg), nil
}

// ProvideCtxLogger creates a named CtxZapLogger provider
func ProvideCtxLogger(module string) func(do.Injector) (*logger.CtxZapLogger, error) {
	return func(i do.Injector) (*logger.CtxZapLogger, error) {
		mgr, err := do.Invoke[*logger.Manager](i)
		if err != nil {
			return logger.GetLogger(module), nil
		}
		return mgr.GetLogger(module), nil
	}
}

// ProvideTransportComponent creates the transport component provider
func ProvideTransportComponent(i do.Injector) (*transport.Component, error) {
	return transport.NewComponent(), nil
}

// ProvideConnectionComponent creates the connection component provider
func ProvideConnectionComponent(i do.Injector) (*connection.Component, error) {
	tr, err := do.Invoke[*transport.Component](i)
	if err != nil {
		return nil, err
	}
	return connection.NewComponent(tr), nil
}

// ProvideHubComponent creates the hub component provider
func ProvideHubComponent(i do.Injector) (*realtime.Component, error) {
	conn, err := do.Invoke[*connection.Component](i)
	if err != nil {
		return nil, err
	}
	tr, err := do.Invoke[*transport.Component](i)
	if err != nil {
		return nil, err
	}
	return realtime.NewComponent(conn, tr), nil
}

// ProvideFeaturesComponent creates the features component provider.
// An Invalidator registered in the injector is picked up; otherwise
// invalidations are logged only.
func ProvideFeaturesComponent(i do.Injector) (*feature.Component, error) {
	hub, err := do.Invoke[*realtime.Component](i)
	if err != nil {
		return nil, err
	}

	invalidate, _ := do.Invoke[feature.Invalidator](i)
	return feature.NewComponent(hub, invalidate), nil
}

// ProvideHealthComponent creates the health component provider over
// every checker-providing component.
func ProvideHealthComponent(i do.Injector) (*health.Component, error) {
	conn, err := do.Invoke[*connection.Component](i)
	if err != nil {
		return nil, err
	}
	hub, err := do.Invoke[*realtime.Component](i)
	if err != nil {
		return nil, err
	}
	features, err := do.Invoke[*feature.Component](i)
	if err != nil {
		return nil, err
	}
	return health.NewComponent(conn, hub, features), nil
}

// ProvideRegistry creates the component registry with the whole stack
// registered.
func ProvideRegistry(i do.Injector) (*component.Registry, error) {
	reg := component.NewRegistry()

	comps := []component.Component{
		do.MustInvoke[*transport.Component](i),
		do.MustInvoke[*connection.Component](i),
		do.MustInvoke[*realtime.Component](i),
		do.MustInvoke[*feature.Component](i),
		do.MustInvoke[*health.Component](i),
	}
	for _, comp := range comps {
		if err := reg.Register(comp); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// RegisterProviders registers every provider of the realtime stack
// into the injector, layered by dependency.
func RegisterProviders(injector do.Injector, opts ConfigOptions) {
	// Layer 0: configuration
	do.Provide(injector, ProvideConfigLoader(opts))

	// Layer 1: logging
	do.Provide(injector, ProvideLoggerManager)
	do.Provide(injector, ProvideCtxLogger("realtime-core"))

	// Layer 2: the realtime stack, bottom up
	do.Provide(injector, ProvideTransportComponent)
	do.Provide(injector, ProvideConnectionComponent)
	do.Provide(injector, ProvideHubComponent)
	do.Provide(injector, ProvideFeaturesComponent)
	do.Provide(injector, ProvideHealthComponent)

	// Layer 3: lifecycle
	do.Provide(injector, ProvideRegistry)
}
