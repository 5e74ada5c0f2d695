// Package feature implements the per-feature subscription manager
// pattern: each manager owns exactly one logical realtime topic, waits
// for hub readiness before registering it, and retries initialization
// on its own bounded budget. An exhausted budget degrades the feature
// to on-demand fetching instead of blocking anything.
package feature

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jaajung-kjs/realtime-core/errcode"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/realtime"
	"github.com/jaajung-kjs/realtime-core/retry"
	"github.com/jaajung-kjs/realtime-core/transport"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrInitFailed the retry budget is exhausted; the feature is degraded
var ErrInitFailed = errcode.Register(errcode.New(errcode.ModuleFeature, 1, "feature", "feature initialization failed"))

// State feature manager lifecycle state
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateActive
	StateRetrying
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateRetrying:
		return "retrying"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Invalidator receives cache-invalidation keys derived from change
// events. Implementations must be idempotent.
type Invalidator func(key string)

// KeyFunc maps one change event to the cache keys it invalidates
type KeyFunc func(transport.ChangeEvent) []string

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the timer source (tests inject a fake clock)
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.CtxZapLogger) Option {
	return func(m *Manager) {
		m.logger = log
	}
}

// Manager owns one feature's topic registration and retry policy.
// Process-wide singleton per feature: many callers may reference it,
// Initialize is idempotent while an attempt is underway or succeeded.
type Manager struct {
	name   string
	topic  string
	filter string
	config Config

	hub        *realtime.Hub
	invalidate Invalidator
	keys       KeyFunc
	logger     *logger.CtxZapLogger
	clock      clockwork.Clock

	mu      sync.Mutex
	state   State
	sub     *realtime.Subscription
	initGen int64
}

// NewManager creates a feature manager for one topic
func NewManager(name, topic, filter string, hub *realtime.Hub, invalidate Invalidator, keys KeyFunc, cfg Config, opts ...Option) *Manager {
	cfg.ApplyDefaults()
	m := &Manager{
		name:       name,
		topic:      topic,
		filter:     filter,
		config:     cfg,
		hub:        hub,
		invalidate: invalidate,
		keys:       keys,
		logger:     logger.GetLogger("feature"),
		clock:      clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns the feature name
func (m *Manager) Name() string { return m.name }

// Topic returns the feature's topic
func (m *Manager) Topic() string { return m.topic }

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Initialize waits for hub readiness and registers the topic, retrying
// on the manager's own bounded budget. Calling it while an attempt is
// running or after success is a no-op. After the budget is exhausted
// the manager parks in the failed state until Shutdown resets it.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateActive, StateInitializing, StateRetrying:
		m.mu.Unlock()
		return nil
	}
	m.state = StateInitializing
	m.initGen++
	gen := m.initGen
	m.mu.Unlock()

	err := retry.Do(ctx, func() error {
		return m.tryActivate(ctx, gen)
	},
		retry.MaxAttempts(m.config.MaxAttempts),
		retry.Backoff(retry.ExponentialBackoff(m.config.RetryBase, retry.WithMaxDelay(m.config.RetryMax))),
		retry.Clock(m.clock),
		retry.Condition(func(err error) bool {
			return !errors.Is(err, realtime.ErrClosed)
		}),
		retry.OnRetry(func(attempt int, err error) {
			m.setState(gen, StateRetrying)
			m.logger.Warn("feature init retrying ⚠️",
				zap.String("feature", m.name),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}),
	)
	if err == nil {
		return nil
	}

	m.setState(gen, StateFailed)
	m.logger.Error("feature degraded, live updates disabled",
		zap.String("feature", m.name),
		zap.String("topic", m.topic),
		zap.Error(err))
	return ErrInitFailed.Wrap(err)
}

// Shutdown unregisters the topic and resets to uninitialized.
// Idempotent; it also clears a failed state so Initialize can start a
// fresh budget.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	m.initGen++
	sub := m.sub
	m.sub = nil
	m.state = StateUninitialized
	m.mu.Unlock()

	if sub != nil {
		m.hub.Unsubscribe(sub)
	}
}

// tryActivate is one initialization attempt
func (m *Manager) tryActivate(ctx context.Context, gen int64) error {
	wctx := ctx
	if m.config.ReadyTimeout > 0 {
		var cancel context.CancelFunc
		wctx, cancel = context.WithTimeout(ctx, m.config.ReadyTimeout)
		defer cancel()
	}
	if err := m.hub.WaitForReady(wctx); err != nil {
		return err
	}

	sub, err := m.hub.Subscribe(m.topic, m.filter, m.onEvent)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.initGen != gen {
		m.mu.Unlock()
		// superseded by Shutdown mid-flight; undo quietly
		m.hub.Unsubscribe(sub)
		return nil
	}
	m.sub = sub
	m.state = StateActive
	m.mu.Unlock()

	m.logger.Info("feature active ✅",
		zap.String("feature", m.name),
		zap.String("topic", m.topic))
	return nil
}

func (m *Manager) setState(gen int64, s State) {
	m.mu.Lock()
	if m.initGen == gen {
		m.state = s
	}
	m.mu.Unlock()
}

// onEvent translates a change event into cache invalidations
func (m *Manager) onEvent(ev transport.ChangeEvent) {
	if m.keys == nil || m.invalidate == nil {
		return
	}
	for _, key := range m.keys(ev) {
		m.invalidate(key)
	}
}

// Config feature manager retry configuration
type Config struct {
	// MaxAttempts initialization budget before degrading
	MaxAttempts int `mapstructure:"max_attempts"`

	// RetryBase first retry delay
	RetryBase time.Duration `mapstructure:"retry_base"`

	// RetryMax retry delay cap
	RetryMax time.Duration `mapstructure:"retry_max"`

	// ReadyTimeout per-attempt readiness wait; zero uses the hub default
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// ApplyDefaults fills zero values with defaults
func (c *Config) ApplyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 4
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 2 * time.Second
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
}
