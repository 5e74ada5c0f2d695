package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jaajung-kjs/realtime-core/breaker"
	"github.com/jaajung-kjs/realtime-core/errcode"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/retry"
	"github.com/jaajung-kjs/realtime-core/transport"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// ErrClosed the core was closed and cannot connect again
var ErrClosed = errcode.Register(errcode.New(errcode.ModuleConnection, 1, "connection", "connection core is closed"))

// Option configures a Core
type Option func(*Core)

// WithClock sets the timer source (tests inject a fake clock)
func WithClock(clock clockwork.Clock) Option {
	return func(c *Core) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.CtxZapLogger) Option {
	return func(c *Core) {
		c.logger = log
	}
}

// WithBreakerMetrics attaches otel metrics to both breakers
func WithBreakerMetrics(m *breaker.Metrics) Option {
	return func(c *Core) {
		c.breakerMetrics = m
	}
}

type listenerEntry struct {
	id int64
	fn Listener
}

// Core supervises the single realtime transport connection.
//
// It owns the transport exclusively: it dials, probes, suspends, and
// rebuilds it. Higher layers observe the connection only through
// Subscribe and never touch the transport directly.
type Core struct {
	config    Config
	transport transport.Transport
	clock     clockwork.Clock
	logger    *logger.CtxZapLogger

	connectBreaker   *breaker.Breaker
	heartbeatBreaker *breaker.Breaker
	breakerMetrics   *breaker.Metrics

	backoff     retry.BackoffStrategy
	fastBackoff retry.BackoffStrategy

	// emitMu serializes status mutation + listener fan-out so
	// listeners observe transitions in order
	emitMu sync.Mutex

	mu             sync.Mutex
	status         Status
	listeners      []listenerEntry
	nextListenerID int64
	hiddenAt       time.Time
	closed         bool

	// gen identifies the current supervision generation; bumping it
	// detaches every in-flight retry loop and heartbeat
	gen        int64
	loopCtx    context.Context
	cancelLoop context.CancelFunc

	heartbeat heartbeatRunner
}

// NewCore creates a connection supervisor over the given transport
func NewCore(cfg Config, tr transport.Transport, opts ...Option) *Core {
	cfg.ApplyDefaults()
	c := &Core{
		config:    cfg,
		transport: tr,
		clock:     clockwork.NewRealClock(),
		logger:    logger.GetLogger("connection"),
		status:    Status{State: StateDisconnected, Visible: true},
	}
	for _, opt := range opts {
		opt(c)
	}

	var breakerOpts []breaker.Option
	breakerOpts = append(breakerOpts, breaker.WithClock(c.clock), breaker.WithLogger(c.logger))
	if c.breakerMetrics != nil {
		breakerOpts = append(breakerOpts, breaker.WithMetrics(c.breakerMetrics))
	}
	c.connectBreaker = breaker.New(cfg.ConnectBreaker, breakerOpts...)
	c.heartbeatBreaker = breaker.New(cfg.HeartbeatBreaker, breakerOpts...)

	c.backoff = retry.ExponentialBackoff(cfg.BackoffBase, retry.WithMaxDelay(cfg.BackoffMax))
	c.fastBackoff = retry.ConstantBackoff(cfg.FastResumeDelay)
	return c
}

// Status returns the current snapshot
func (c *Core) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ConnectBreaker exposes the connect breaker for introspection
func (c *Core) ConnectBreaker() *breaker.Breaker { return c.connectBreaker }

// HeartbeatBreaker exposes the heartbeat breaker for introspection
func (c *Core) HeartbeatBreaker() *breaker.Breaker { return c.heartbeatBreaker }

// Subscribe registers a status listener and replays the current status
// to it immediately. The returned func removes the listener.
func (c *Core) Subscribe(fn Listener) func() {
	c.mu.Lock()
	c.nextListenerID++
	id := c.nextListenerID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	st := c.status
	c.mu.Unlock()

	fn(st)

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, e := range c.listeners {
			if e.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Connect starts supervised connection establishment.
//
// The first attempt runs synchronously; if it fails with a retryable
// error the retry loop continues in the background with exponential
// backoff until it succeeds or the connect breaker opens. Calling
// Connect while connected or connecting is a no-op.
func (c *Core) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.status.State == StateConnected || c.status.State == StateConnecting {
		c.mu.Unlock()
		return nil
	}
	gen, _ := c.newGenLocked()
	c.mu.Unlock()

	c.transitionGen(gen, func(s *Status) { s.State = StateConnecting })

	err := c.attempt(ctx, gen, false)
	if err != nil && c.shouldRetry(err) {
		go c.retryLoop(gen, false)
	}
	return err
}

// Reconnect forces an immediate attempt, bypassing any pending backoff
// delay but not the connect breaker.
func (c *Core) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	gen, _ := c.newGenLocked()
	c.mu.Unlock()

	c.heartbeat.stop()
	_ = c.transport.Close()

	c.transitionGen(gen, func(s *Status) { s.State = StateConnecting })

	err := c.attempt(ctx, gen, false)
	if err != nil && c.shouldRetry(err) {
		go c.retryLoop(gen, false)
	}
	return err
}

// SetVisible records a foreground/background change.
//
// Going hidden only marks the time; suspension happens later if a
// heartbeat misses past the grace period. Coming back after a long
// background tears the transport down and reconnects cold; a shorter
// background takes the fast-resume path.
func (c *Core) SetVisible(visible bool) {
	c.mu.Lock()
	if c.closed || c.status.Visible == visible {
		c.mu.Unlock()
		return
	}
	var hiddenFor time.Duration
	if visible {
		hiddenFor = c.clock.Since(c.hiddenAt)
	} else {
		c.hiddenAt = c.clock.Now()
	}
	state := c.status.State
	c.mu.Unlock()

	c.transition(func(s *Status) { s.Visible = visible })

	if !visible {
		return
	}

	switch {
	case hiddenFor >= c.config.LongBackground &&
		(state == StateConnected || state == StateSuspended || state == StateError):
		c.logger.Info("long background, rebuilding transport",
			zap.Duration("hidden_for", hiddenFor))
		go c.restart(false)

	case state == StateSuspended || state == StateError:
		c.logger.Info("short background, fast resume",
			zap.Duration("hidden_for", hiddenFor))
		go c.fastResume()
	}
}

// Close tears everything down; the core cannot be reused afterwards
func (c *Core) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.newGenLocked()
	c.mu.Unlock()

	c.heartbeat.stop()
	err := c.transport.Close()

	c.transition(func(s *Status) {
		s.State = StateDisconnected
		s.LastError = nil
	})
	return err
}

// attempt runs one breaker-guarded dial and applies the outcome
func (c *Core) attempt(ctx context.Context, gen int64, fast bool) error {
	dial := c.config.DialTimeout
	if fast {
		dial = c.config.FastDialTimeout
	}

	err := c.connectBreaker.Execute(ctx, func(ctx context.Context) error {
		_ = c.transport.Close() // drop any stale session
		dctx, cancel := context.WithTimeout(ctx, dial)
		defer cancel()
		return c.transport.Open(dctx)
	})
	if err != nil {
		c.transitionGen(gen, func(s *Status) {
			s.State = StateError
			s.LastError = err
			if !errors.Is(err, breaker.ErrCircuitOpen) {
				s.ReconnectAttempts++
			}
		})
		return err
	}

	c.transitionGen(gen, func(s *Status) {
		s.State = StateConnected
		s.LastError = nil
		s.ReconnectAttempts = 0
		s.Epoch++
	})
	c.startHeartbeat(gen)
	return nil
}

// retryLoop keeps attempting until success, breaker open, or supersession
func (c *Core) retryLoop(gen int64, fast bool) {
	c.mu.Lock()
	ctx := c.loopCtx
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if c.closed || c.gen != gen {
			c.mu.Unlock()
			return
		}
		attempts := c.status.ReconnectAttempts
		c.mu.Unlock()

		delay := c.backoff.Next(attempts)
		if fast {
			delay = c.fastBackoff.Next(attempts)
		}

		select {
		case <-ctx.Done():
			return
		case <-c.clock.After(delay):
		}

		c.transitionGen(gen, func(s *Status) { s.State = StateConnecting })

		err := c.attempt(ctx, gen, fast)
		if err == nil || !c.shouldRetry(err) {
			return
		}
		c.logger.Warn("connect attempt failed",
			zap.Error(err),
			zap.Int("attempts", c.Status().ReconnectAttempts))
	}
}

// restart rebuilds the transport from scratch under a new generation
func (c *Core) restart(fast bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	gen, ctx := c.newGenLocked()
	c.mu.Unlock()

	c.heartbeat.stop()
	_ = c.transport.Close()

	c.transitionGen(gen, func(s *Status) { s.State = StateConnecting })

	if err := c.attempt(ctx, gen, fast); err != nil && c.shouldRetry(err) {
		go c.retryLoop(gen, fast)
	}
}

// fastResume probes the kept transport; a live one is promoted back to
// connected, a stale one is rebuilt on the fast path
func (c *Core) fastResume() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.FastDialTimeout)
	defer cancel()

	if err := c.transport.Ping(ctx); err == nil {
		c.mu.Lock()
		gen := c.gen
		c.mu.Unlock()
		c.transitionGen(gen, func(s *Status) {
			s.State = StateConnected
			s.LastError = nil
			s.ReconnectAttempts = 0
		})
		c.ensureHeartbeat(gen)
		return
	}

	c.restart(true)
}

func (c *Core) shouldRetry(err error) bool {
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrClosed) {
		return false
	}
	return true
}

// newGenLocked starts a new supervision generation, detaching every
// loop of the previous one. Caller holds c.mu.
func (c *Core) newGenLocked() (int64, context.Context) {
	c.gen++
	if c.cancelLoop != nil {
		c.cancelLoop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.loopCtx = ctx
	c.cancelLoop = cancel
	return c.gen, ctx
}

// transition mutates the status and fans it out to listeners in order
func (c *Core) transition(mutate func(*Status)) {
	c.applyTransition(-1, mutate)
}

// transitionGen is transition guarded by the supervision generation;
// stale goroutines of a superseded generation become no-ops
func (c *Core) transitionGen(gen int64, mutate func(*Status)) {
	c.applyTransition(gen, mutate)
}

func (c *Core) applyTransition(gen int64, mutate func(*Status)) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	c.mu.Lock()
	if gen >= 0 && c.gen != gen {
		c.mu.Unlock()
		return
	}
	prev := c.status.State
	mutate(&c.status)
	c.status.LastTransition = c.clock.Now()
	st := c.status
	entries := make([]listenerEntry, len(c.listeners))
	copy(entries, c.listeners)
	c.mu.Unlock()

	if prev != st.State {
		c.logger.Info("connection state changed",
			zap.String("from", prev.String()),
			zap.String("to", st.State.String()),
			zap.Int("attempts", st.ReconnectAttempts),
			zap.Bool("visible", st.Visible))
	}

	for _, e := range entries {
		e.fn(st)
	}
}
