// Package app bootstraps the realtime stack: configuration, logging,
// dependency injection, component lifecycle, and signal handling.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jaajung-kjs/realtime-core/component"
	"github.com/jaajung-kjs/realtime-core/config"
	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/jaajung-kjs/realtime-core/di"
	"github.com/jaajung-kjs/realtime-core/feature"
	"github.com/jaajung-kjs/realtime-core/health"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/realtime"
	"github.com/samber/do/v2"
	"go.uber.org/zap"
)

// State application state
type State int

const (
	StateNew State = iota
	StateInitialized
	StateRunning
	StateStopping
	StateStopped
)

// String state name
func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateInitialized:
		return "Initialized"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// App owns the whole realtime stack. Init is idempotent: a second
// invocation is a no-op returning the first outcome, so embedding
// codebases may call it from several entry points safely.
type App struct {
	injector *do.RootScope

	name       string
	version    string
	configFile string
	envPrefix  string
	defaults   map[string]interface{}
	invalidate feature.Invalidator

	loader   *config.Loader
	logger   *logger.CtxZapLogger
	registry *component.Registry

	mu       sync.Mutex
	state    State
	initOnce sync.Once
	initErr  error

	ctx    context.Context
	cancel context.CancelFunc

	onReady    func(*App) error
	onShutdown func(context.Context) error
}

// Option application option
type Option func(*App)

// WithName sets the application name
func WithName(name string) Option {
	return func(a *App) { a.name = name }
}

// WithVersion sets the application version
func WithVersion(version string) Option {
	return func(a *App) { a.version = version }
}

// WithConfigFile sets the config file path
func WithConfigFile(path string) Option {
	return func(a *App) { a.configFile = path }
}

// WithEnvPrefix sets the environment variable prefix
func WithEnvPrefix(prefix string) Option {
	return func(a *App) { a.envPrefix = prefix }
}

// WithDefaults sets flat dot-keyed configuration defaults
func WithDefaults(defaults map[string]interface{}) Option {
	return func(a *App) { a.defaults = defaults }
}

// WithInvalidator sets the cache invalidation callback handed to the
// feature managers.
func WithInvalidator(fn feature.Invalidator) Option {
	return func(a *App) { a.invalidate = fn }
}

// WithOnReady sets a callback invoked after all components started
func WithOnReady(fn func(*App) error) Option {
	return func(a *App) { a.onReady = fn }
}

// WithOnShutdown sets a callback invoked before components stop
func WithOnShutdown(fn func(context.Context) error) Option {
	return func(a *App) { a.onShutdown = fn }
}

// New creates an application instance
func New(opts ...Option) *App {
	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		injector: do.New(),
		name:     "realtime-core",
		version:  "0.0.1",
		ctx:      ctx,
		cancel:   cancel,
		state:    StateNew,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Injector returns the do injector
func (a *App) Injector() *do.RootScope { return a.injector }

// ConfigLoader returns the configuration loader, nil before Init
func (a *App) ConfigLoader() *config.Loader { return a.loader }

// Logger returns the application logger, nil before Init
func (a *App) Logger() *logger.CtxZapLogger { return a.logger }

// Registry returns the component registry, nil before Init
func (a *App) Registry() *component.Registry { return a.registry }

// State returns the current application state
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *App) setState(s State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
}

// Init wires providers, loads configuration, and initializes every
// component in dependency order. Safe to call more than once.
func (a *App) Init(ctx context.Context) error {
	a.initOnce.Do(func() {
		a.initErr = a.doInit(ctx)
	})
	return a.initErr
}

func (a *App) doInit(ctx context.Context) error {
	di.RegisterProviders(a.injector, di.ConfigOptions{
		ConfigFile: a.configFile,
		EnvPrefix:  a.envPrefix,
		Defaults:   a.defaults,
	})
	if a.invalidate != nil {
		do.ProvideValue(a.injector, a.invalidate)
	}

	loader, err := do.Invoke[*config.Loader](a.injector)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	a.loader = loader

	log, err := do.Invoke[*logger.CtxZapLogger](a.injector)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	a.logger = log

	a.logger.InfoCtx(ctx, "🔧 initializing application",
		zap.String("name", a.name),
		zap.String("version", a.version),
		zap.String("config_file", a.configFile),
	)

	registry, err := do.Invoke[*component.Registry](a.injector)
	if err != nil {
		return fmt.Errorf("build component registry: %w", err)
	}
	a.registry = registry

	if err := a.registry.Init(ctx, a.loader); err != nil {
		return err
	}

	a.setState(StateInitialized)
	return nil
}

// Start starts all components and invokes the ready callback
func (a *App) Start(ctx context.Context) error {
	if err := a.Init(ctx); err != nil {
		return err
	}

	if err := a.registry.Start(ctx); err != nil {
		return err
	}
	a.setState(StateRunning)

	a.logger.InfoCtx(ctx, "✅ application started",
		zap.String("name", a.name),
		zap.String("version", a.version),
	)

	if a.onReady != nil {
		if err := a.onReady(a); err != nil {
			return fmt.Errorf("ready callback: %w", err)
		}
	}
	return nil
}

// Run starts the stack and blocks until SIGINT/SIGTERM
func (a *App) Run() error {
	if err := a.Start(a.ctx); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		a.logger.Info("📥 received signal", zap.String("signal", sig.String()))
	case <-a.ctx.Done():
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Shutdown(ctx)
}

// Shutdown stops all components in reverse order. Idempotent.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateStopping || a.state == StateStopped {
		a.mu.Unlock()
		return nil
	}
	a.state = StateStopping
	a.mu.Unlock()

	if a.logger != nil {
		a.logger.InfoCtx(ctx, "🔄 shutting down")
	}

	if a.onShutdown != nil {
		if err := a.onShutdown(ctx); err != nil && a.logger != nil {
			a.logger.WarnCtx(ctx, "shutdown callback failed", zap.Error(err))
		}
	}

	a.cancel()

	if a.registry != nil {
		if err := a.registry.Stop(ctx); err != nil && a.logger != nil {
			a.logger.WarnCtx(ctx, "component stop failed", zap.Error(err))
		}
	}

	if err := a.injector.Shutdown(); err != nil && a.logger != nil {
		a.logger.WarnCtx(ctx, "injector shutdown failed", zap.Error(err))
	}

	a.setState(StateStopped)
	if a.logger != nil {
		a.logger.InfoCtx(ctx, "✅ application stopped")
	}
	return nil
}

// Core returns the connection supervisor, nil before Init
func (a *App) Core() *connection.Core {
	comp, err := do.Invoke[*connection.Component](a.injector)
	if err != nil {
		return nil
	}
	return comp.GetCore()
}

// Hub returns the realtime hub, nil before Init
func (a *App) Hub() *realtime.Hub {
	comp, err := do.Invoke[*realtime.Component](a.injector)
	if err != nil {
		return nil
	}
	return comp.GetHub()
}

// Features returns the feature managers, nil before Init
func (a *App) Features() []*feature.Manager {
	comp, err := do.Invoke[*feature.Component](a.injector)
	if err != nil {
		return nil
	}
	return comp.Managers()
}

// Health runs the aggregated health check
func (a *App) Health(ctx context.Context) *health.Response {
	comp, err := do.Invoke[*health.Component](a.injector)
	if err != nil {
		return nil
	}
	return comp.Check(ctx)
}
