package component

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jaajung-kjs/realtime-core/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Registry holds registered components and drives their lifecycle in
// dependency order. Components with no path between them run their
// phase concurrently within a layer.
type Registry struct {
	mu         sync.RWMutex
	components map[string]Component
	logger     *logger.CtxZapLogger
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		components: make(map[string]Component),
		logger:     logger.GetLogger("component"),
	}
}

// Register adds a component. Registering nil, an empty name, or a
// duplicate name is an error.
func (r *Registry) Register(comp Component) error {
	if comp == nil {
		return fmt.Errorf("component must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := comp.Name()
	if name == "" {
		return fmt.Errorf("component name must not be empty")
	}
	if _, exists := r.components[name]; exists {
		return fmt.Errorf("component %q already registered", name)
	}

	r.components[name] = comp
	return nil
}

// MustRegister registers a component and panics on failure. Used for
// the built-in components where a registration error is a programming
// mistake.
func (r *Registry) MustRegister(comp Component) {
	if err := r.Register(comp); err != nil {
		panic(fmt.Sprintf("register component %q: %v", comp.Name(), err))
	}
}

// Get returns a component by name
func (r *Registry) Get(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	comp, ok := r.components[name]
	return comp, ok
}

// MustGet returns a component by name and panics when absent
func (r *Registry) MustGet(name string) Component {
	comp, ok := r.Get(name)
	if !ok {
		panic(fmt.Sprintf("component %q not registered", name))
	}
	return comp
}

// Has reports whether a component is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.components[name]
	return exists
}

// GetTyped returns a component cast to T; false when absent or the
// type does not match.
func GetTyped[T Component](r *Registry, name string) (T, bool) {
	var zero T
	comp, ok := r.Get(name)
	if !ok {
		return zero, false
	}

	typed, ok := comp.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}

// MustGetTyped returns a component cast to T and panics when absent or
// the type does not match.
func MustGetTyped[T Component](r *Registry, name string) T {
	typed, ok := GetTyped[T](r, name)
	if !ok {
		var zero T
		panic(fmt.Sprintf("component %q not registered or not %T", name, zero))
	}
	return typed
}

// Resolve returns all components in dependency order
func (r *Registry) Resolve() ([]Component, error) {
	layers, err := r.resolveLayers()
	if err != nil {
		return nil, err
	}

	var out []Component
	for _, layer := range layers {
		out = append(out, layer...)
	}
	return out, nil
}

// Init initializes all components layer by layer, passing each the
// configuration loader.
func (r *Registry) Init(ctx context.Context, loader ConfigLoader) error {
	r.logger.InfoCtx(ctx, "🚀 initializing components", zap.Int("total", r.count()))

	layers, err := r.resolveLayers()
	if err != nil {
		r.logger.ErrorCtx(ctx, "resolving component dependencies failed", zap.Error(err))
		return err
	}

	for idx, layer := range layers {
		r.logger.DebugCtx(ctx, "initializing layer",
			zap.Int("layer", idx),
			zap.Int("count", len(layer)))

		if err := r.runLayer(ctx, layer, func(c Component) error {
			return c.Init(ctx, loader)
		}); err != nil {
			r.logger.ErrorCtx(ctx, "component init failed", zap.Error(err))
			return err
		}
	}

	r.logger.InfoCtx(ctx, "✅ all components initialized")
	return nil
}

// Start starts all components layer by layer
func (r *Registry) Start(ctx context.Context) error {
	r.logger.InfoCtx(ctx, "🚀 starting components")

	layers, err := r.resolveLayers()
	if err != nil {
		return err
	}

	for idx, layer := range layers {
		r.logger.DebugCtx(ctx, "starting layer",
			zap.Int("layer", idx),
			zap.Int("count", len(layer)))

		if err := r.runLayer(ctx, layer, func(c Component) error {
			return c.Start(ctx)
		}); err != nil {
			r.logger.ErrorCtx(ctx, "component start failed", zap.Error(err))
			return err
		}
	}

	r.logger.InfoCtx(ctx, "✅ all components started")
	return nil
}

// Stop stops all components in reverse dependency order. Stop errors
// are logged and ignored so every component gets its chance to clean
// up.
func (r *Registry) Stop(ctx context.Context) error {
	r.logger.InfoCtx(ctx, "🛑 stopping components")

	layers, err := r.resolveLayers()
	if err != nil {
		return err
	}

	for i := len(layers) - 1; i >= 0; i-- {
		r.stopLayer(ctx, layers[i])
	}

	r.logger.InfoCtx(ctx, "✅ all components stopped")
	return nil
}

func (r *Registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.components)
}

// runLayer runs one lifecycle phase for every component of a layer
// concurrently; the first error cancels the rest.
func (r *Registry) runLayer(ctx context.Context, layer []Component, fn func(Component) error) error {
	if len(layer) == 1 {
		comp := layer[0]
		if err := fn(comp); err != nil {
			return fmt.Errorf("component %q: %w", comp.Name(), err)
		}
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	for _, comp := range layer {
		c := comp
		g.Go(func() error {
			if err := fn(c); err != nil {
				return fmt.Errorf("component %q: %w", c.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// stopLayer stops one layer concurrently, ignoring errors
func (r *Registry) stopLayer(ctx context.Context, layer []Component) {
	var wg sync.WaitGroup
	for _, comp := range layer {
		wg.Add(1)
		go func(c Component) {
			defer wg.Done()
			if err := c.Stop(ctx); err != nil {
				r.logger.WarnCtx(ctx, "component stop failed",
					zap.String("component", c.Name()),
					zap.Error(err))
			}
		}(comp)
	}
	wg.Wait()
}

// resolveLayers groups the dependency graph into layers for concurrent
// execution. Layer 0 has no dependencies, layer N depends only on
// layers < N.
func (r *Registry) resolveLayers() ([][]Component, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inDegree := make(map[string]int)
	graph := make(map[string][]string)

	for name := range r.components {
		inDegree[name] = 0
		graph[name] = nil
	}

	for name, comp := range r.components {
		for _, dep := range comp.DependsOn() {
			depName, optional := strings.CutPrefix(dep, "optional:")

			if _, ok := r.components[depName]; !ok {
				if optional {
					continue
				}
				return nil, fmt.Errorf("component %q depends on unregistered %q", name, depName)
			}

			graph[depName] = append(graph[depName], name)
			inDegree[name]++
		}
	}

	var layers [][]Component
	processed := make(map[string]bool)

	for len(processed) < len(r.components) {
		var current []string
		for name, degree := range inDegree {
			if processed[name] || degree != 0 {
				continue
			}
			current = append(current, name)
			processed[name] = true
		}

		if len(current) == 0 {
			return nil, fmt.Errorf("circular component dependency detected")
		}

		layer := make([]Component, 0, len(current))
		for _, name := range current {
			layer = append(layer, r.components[name])
			for _, next := range graph[name] {
				inDegree[next]--
			}
		}
		layers = append(layers, layer)
	}

	return layers, nil
}
