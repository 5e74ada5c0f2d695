// Package breaker provides a circuit breaker guarding one class of
// fallible operations. It counts consecutive failures, opens at a
// threshold, fails fast while open, and allows a bounded number of
// half-open probes after a cool-down window.
package breaker

import (
	"context"

	"github.com/jaajung-kjs/realtime-core/errcode"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var (
	// ErrCircuitOpen the breaker is open; the operation was not invoked
	ErrCircuitOpen = errcode.Register(errcode.New(errcode.ModuleBreaker, 1, "breaker", "circuit breaker is open"))

	// ErrTooManyProbes the half-open probe budget is exhausted
	ErrTooManyProbes = errcode.Register(errcode.New(errcode.ModuleBreaker, 2, "breaker", "too many requests in half-open state"))
)

// State circuit breaker state
type State int32

const (
	// StateClosed closed (operational)
	StateClosed State = iota

	// StateOpen open (failing fast)
	StateOpen

	// StateHalfOpen half-open (probing recovery)
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// IsOpen reports whether the breaker is failing fast
func (s State) IsOpen() bool {
	return s == StateOpen
}

// StateListener receives state transition edges
type StateListener func(from, to State, reason string)

// Option configures a Breaker
type Option func(*Breaker)

// WithClock sets the timer source (tests inject a fake clock)
func WithClock(clock clockwork.Clock) Option {
	return func(b *Breaker) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.CtxZapLogger) Option {
	return func(b *Breaker) {
		b.logger = log
	}
}

// WithMetrics attaches an otel metrics recorder
func WithMetrics(m *Metrics) Option {
	return func(b *Breaker) {
		b.metrics = m
	}
}

// New creates a circuit breaker
func New(cfg Config, opts ...Option) *Breaker {
	cfg.ApplyDefaults()
	b := &Breaker{
		config: cfg,
		clock:  clockwork.NewRealClock(),
		logger: logger.GetLogger("breaker"),
	}
	b.stateMgr = newStateManager(b.clock)
	for _, opt := range opts {
		opt(b)
	}
	// options may have replaced the clock
	b.stateMgr.clock = b.clock
	if b.metrics != nil {
		b.metrics.observeState(cfg.Name, b.State)
	}
	return b
}

// Breaker circuit breaker instance
type Breaker struct {
	config   Config
	stateMgr *stateManager
	clock    clockwork.Clock
	logger   *logger.CtxZapLogger
	metrics  *Metrics
}

// Execute runs the protected operation
// Fails fast with ErrCircuitOpen while the breaker is open and the reset
// window has not elapsed; otherwise invokes op and records the outcome
func (b *Breaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	allowed, rejection := b.stateMgr.canAttempt(b.config)
	if !allowed {
		if b.metrics != nil {
			b.metrics.recordRejection(ctx, b.config.Name)
		}
		b.logger.DebugCtx(ctx, "breaker rejected call",
			zap.String("breaker", b.config.Name),
			zap.String("state", b.State().String()))
		return rejection
	}

	err := op(ctx)
	if err != nil {
		b.onFailure(ctx, err)
		return err
	}
	b.onSuccess(ctx)
	return nil
}

// State returns the current state
func (b *Breaker) State() State {
	return b.stateMgr.getState()
}

// Snapshot returns a point-in-time view of the breaker
func (b *Breaker) Snapshot() Snapshot {
	return b.stateMgr.snapshot(b.config)
}

// OnStateChange registers a transition listener (called on every edge)
func (b *Breaker) OnStateChange(fn StateListener) {
	b.stateMgr.addListener(fn)
}

// Reset manually closes the breaker and zeroes the counters
func (b *Breaker) Reset() {
	if t, ok := b.stateMgr.reset(); ok {
		b.logStateChange(context.Background(), t)
	}
}

func (b *Breaker) onSuccess(ctx context.Context) {
	if b.metrics != nil {
		b.metrics.recordSuccess(ctx, b.config.Name)
	}
	if t, ok := b.stateMgr.recordSuccess(); ok {
		b.logStateChange(ctx, t)
	}
}

func (b *Breaker) onFailure(ctx context.Context, err error) {
	if b.metrics != nil {
		b.metrics.recordFailure(ctx, b.config.Name)
	}
	if t, ok := b.stateMgr.recordFailure(b.config); ok {
		b.logger.WarnCtx(ctx, "breaker recorded failure",
			zap.String("breaker", b.config.Name),
			zap.Error(err))
		b.logStateChange(ctx, t)
	}
}

func (b *Breaker) logStateChange(ctx context.Context, t transition) {
	b.logger.InfoCtx(ctx, "breaker state changed",
		zap.String("breaker", b.config.Name),
		zap.String("from", t.from.String()),
		zap.String("to", t.to.String()),
		zap.String("reason", t.reason))
	if b.metrics != nil {
		b.metrics.recordTransition(ctx, b.config.Name, t.from, t.to)
	}
}

// Snapshot point-in-time breaker view
type Snapshot struct {
	Name         string
	State        State
	FailureCount int
	Threshold    int
	OpenedAt     int64 // unix milliseconds, zero when never opened
}
