// Package realtime implements the hub that gates topic subscriptions on
// connection readiness and fans backend change events out to feature
// callbacks. Readiness means connected AND visible: a connected but
// backgrounded client must not set up subscriptions.
package realtime

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/jaajung-kjs/realtime-core/errcode"
	"github.com/jaajung-kjs/realtime-core/logger"
	"github.com/jaajung-kjs/realtime-core/transport"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	// ErrReadyTimeout WaitForReady gave up before the hub became ready
	ErrReadyTimeout = errcode.Register(errcode.New(errcode.ModuleRealtime, 1, "realtime", "realtime hub readiness timed out"))

	// ErrClosed the hub was closed
	ErrClosed = errcode.Register(errcode.New(errcode.ModuleRealtime, 2, "realtime", "realtime hub is closed"))
)

// Option configures a Hub
type Option func(*Hub)

// WithLogger sets the logger
func WithLogger(log *logger.CtxZapLogger) Option {
	return func(h *Hub) {
		h.logger = log
	}
}

// Hub is the single point of truth for "is the realtime transport
// usable" and the single dispatcher of backend change events.
//
// Feature code never talks to the transport directly: everything goes
// through Subscribe/Unsubscribe here, so no two features can open
// duplicate underlying subscriptions.
type Hub struct {
	config    Config
	core      *connection.Core
	transport transport.Transport
	logger    *logger.CtxZapLogger
	pool      *ants.Pool

	mu             sync.Mutex
	started        bool
	closed         bool
	ready          bool
	epoch          int64
	readerEpoch    int64
	waiters        map[int64]chan error
	nextWaiterID   int64
	readyListeners []func()
	pending        []*Subscription // FIFO until the next readiness edge
	topics         map[string]*topicState
	topicOrder     []string
	subs           map[uuid.UUID]*Subscription
	statusCancel   func()
}

// NewHub creates a hub over the given connection core and transport
func NewHub(cfg Config, core *connection.Core, tr transport.Transport, opts ...Option) *Hub {
	cfg.ApplyDefaults()
	h := &Hub{
		config:    cfg,
		core:      core,
		transport: tr,
		logger:    logger.GetLogger("realtime"),
		waiters:   make(map[int64]chan error),
		topics:    make(map[string]*topicState),
		subs:      make(map[uuid.UUID]*Subscription),
	}
	for _, opt := range opts {
		opt(h)
	}

	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		pool, _ = ants.NewPool(DefaultPoolSize)
	}
	h.pool = pool
	return h
}

// Start attaches the hub to the connection core. Idempotent.
func (h *Hub) Start() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = true
	h.mu.Unlock()

	cancel := h.core.Subscribe(h.onStatus)

	h.mu.Lock()
	h.statusCancel = cancel
	closed := h.closed
	h.mu.Unlock()
	if closed {
		cancel()
	}
	return nil
}

// IsReady reports the current readiness flag
func (h *Hub) IsReady() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// WaitForReady blocks until the hub is ready or ctx expires. When ctx
// carries no deadline the configured ReadyTimeout applies. A timed-out
// call leaves no waiter behind.
func (h *Hub) WaitForReady(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	if h.ready {
		h.mu.Unlock()
		return nil
	}
	h.nextWaiterID++
	id := h.nextWaiterID
	ch := make(chan error, 1)
	h.waiters[id] = ch
	h.mu.Unlock()

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.ReadyTimeout)
		defer cancel()
	}

	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		h.mu.Lock()
		delete(h.waiters, id)
		h.mu.Unlock()
		return ErrReadyTimeout.Wrap(ctx.Err())
	}
}

// OnReady registers a readiness listener fired once per false-to-true
// edge. A listener registered while already ready fires immediately.
func (h *Hub) OnReady(fn func()) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	ready := h.ready
	h.readyListeners = append(h.readyListeners, fn)
	h.mu.Unlock()

	if ready {
		fn()
	}
}

// Subscribe registers a callback for a topic. When the hub is ready the
// backend subscription is set up immediately; otherwise the request
// joins the FIFO pending queue and is executed exactly once on the next
// readiness edge. The handle works for Unsubscribe either way.
func (h *Hub) Subscribe(topic, filter string, cb Callback) (*Subscription, error) {
	sub := &Subscription{id: uuid.New(), topic: topic, filter: filter, cb: cb}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if !h.ready {
		h.pending = append(h.pending, sub)
		h.mu.Unlock()
		h.logger.Debug("subscription queued until ready",
			zap.String("topic", topic), zap.String("id", sub.id.String()))
		return sub, nil
	}
	epoch := h.epoch
	h.mu.Unlock()

	if err := h.actualSubscribe(sub, epoch); err != nil {
		return nil, err
	}
	return sub, nil
}

// Unsubscribe removes a registration; the last registration of a topic
// also drops the backend subscription (best effort).
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	for i, p := range h.pending {
		if p.id == sub.id {
			h.pending = append(h.pending[:i], h.pending[i+1:]...)
			h.mu.Unlock()
			return
		}
	}
	delete(h.subs, sub.id)
	topicGone := false
	if ts := h.topics[sub.topic]; ts != nil {
		for i, s := range ts.subs {
			if s.id == sub.id {
				ts.subs = append(ts.subs[:i], ts.subs[i+1:]...)
				break
			}
		}
		if len(ts.subs) == 0 {
			delete(h.topics, sub.topic)
			h.removeTopicOrder(sub.topic)
			topicGone = true
		}
	}
	ready := h.ready
	h.mu.Unlock()

	if topicGone && ready {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.SubscribeTimeout)
		defer cancel()
		if err := h.transport.Unsubscribe(ctx, sub.topic); err != nil {
			h.logger.Warn("backend unsubscribe failed",
				zap.String("topic", sub.topic), zap.Error(err))
		}
	}
}

// Close tears down the dispatch directory and detaches from the core.
// Idempotent.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.ready = false
	cancel := h.statusCancel
	waiters := h.waiters
	h.waiters = make(map[int64]chan error)
	h.pending = nil
	h.readyListeners = nil
	h.topics = make(map[string]*topicState)
	h.topicOrder = nil
	h.subs = make(map[uuid.UUID]*Subscription)
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, ch := range waiters {
		ch <- ErrClosed
	}
	h.pool.Release()
	return nil
}

// onStatus recomputes readiness from a connection snapshot. The core
// serializes listener callbacks, so edges are observed in order.
func (h *Hub) onStatus(st connection.Status) {
	ready := st.State == connection.StateConnected && st.Visible

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.epoch = st.Epoch
	wasReady := h.ready
	h.ready = ready
	startReader := st.State == connection.StateConnected && st.Epoch != h.readerEpoch
	if startReader {
		h.readerEpoch = st.Epoch
	}
	h.mu.Unlock()

	if startReader {
		go h.readEvents(h.transport.Events())
	}
	if ready && !wasReady {
		h.becomeReady(st.Epoch)
	}
}

// becomeReady runs once per readiness edge: re-register topics left
// over from a replaced transport session, drain the pending queue FIFO,
// release waiters, fire listeners.
func (h *Hub) becomeReady(epoch int64) {
	h.rewireTopics(epoch)

	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, sub := range pending {
		if err := h.actualSubscribe(sub, epoch); err != nil {
			h.logger.Warn("queued subscription failed",
				zap.String("topic", sub.topic), zap.Error(err))
		}
	}

	h.mu.Lock()
	if !h.ready {
		h.mu.Unlock()
		return
	}
	waiters := h.waiters
	h.waiters = make(map[int64]chan error)
	listeners := make([]func(), len(h.readyListeners))
	copy(listeners, h.readyListeners)
	h.mu.Unlock()

	for _, ch := range waiters {
		ch <- nil
	}
	for _, fn := range listeners {
		fn()
	}
	h.logger.Info("realtime hub ready ✅", zap.Int64("epoch", epoch))
}

// rewireTopics re-registers topics whose backend subscription belonged
// to a previous transport session, exactly once per session
func (h *Hub) rewireTopics(epoch int64) {
	h.mu.Lock()
	var stale []string
	for _, topic := range h.topicOrder {
		if ts := h.topics[topic]; ts != nil && ts.wiredEpoch != epoch {
			stale = append(stale, topic)
		}
	}
	h.mu.Unlock()

	for _, topic := range stale {
		h.mu.Lock()
		ts := h.topics[topic]
		if ts == nil || ts.wiredEpoch == epoch {
			h.mu.Unlock()
			continue
		}
		filter := ts.filter
		h.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), h.config.SubscribeTimeout)
		err := h.transport.Subscribe(ctx, topic, filter)
		cancel()
		if err != nil {
			h.logger.Warn("topic re-registration failed",
				zap.String("topic", topic), zap.Error(err))
			continue
		}

		h.mu.Lock()
		if ts := h.topics[topic]; ts != nil {
			ts.wiredEpoch = epoch
		}
		h.mu.Unlock()
	}
}

// actualSubscribe performs the backend subscription and registers the
// callback. A backend rejection leaves the topic unregistered and does
// not affect other topics.
func (h *Hub) actualSubscribe(sub *Subscription, epoch int64) error {
	h.mu.Lock()
	ts := h.topics[sub.topic]
	needWire := ts == nil || ts.wiredEpoch != epoch
	h.mu.Unlock()

	if needWire {
		ctx, cancel := context.WithTimeout(context.Background(), h.config.SubscribeTimeout)
		err := h.transport.Subscribe(ctx, sub.topic, sub.filter)
		cancel()
		if err != nil {
			h.logger.Warn("backend subscribe failed",
				zap.String("topic", sub.topic), zap.Error(err))
			return err
		}
	}

	h.mu.Lock()
	ts = h.topics[sub.topic]
	if ts == nil {
		ts = &topicState{filter: sub.filter}
		h.topics[sub.topic] = ts
		h.topicOrder = append(h.topicOrder, sub.topic)
	}
	ts.wiredEpoch = epoch
	ts.subs = append(ts.subs, sub)
	h.subs[sub.id] = sub
	h.mu.Unlock()
	return nil
}

// readEvents consumes one transport session's event stream; it ends
// when the session dies and a new reader starts with the next session
func (h *Hub) readEvents(events <-chan transport.ChangeEvent) {
	if events == nil {
		return
	}
	for ev := range events {
		h.dispatch(ev)
	}
}

// dispatch queues the event on its topic and hands the topic's drain to
// the worker pool; one drain task at a time per topic keeps per-topic
// order while different topics fan out in parallel
func (h *Hub) dispatch(ev transport.ChangeEvent) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	ts := h.topics[ev.Topic]
	if ts == nil || len(ts.subs) == 0 {
		h.mu.Unlock()
		h.logger.Debug("event for unregistered topic", zap.String("topic", ev.Topic))
		return
	}
	ts.queue = append(ts.queue, ev)
	if ts.draining {
		h.mu.Unlock()
		return
	}
	ts.draining = true
	h.mu.Unlock()

	topic := ev.Topic
	task := func() { h.drainTopic(topic) }
	if err := h.pool.Submit(task); err != nil {
		task()
	}
}

func (h *Hub) drainTopic(topic string) {
	for {
		h.mu.Lock()
		ts := h.topics[topic]
		if ts == nil {
			h.mu.Unlock()
			return
		}
		if len(ts.queue) == 0 {
			ts.draining = false
			h.mu.Unlock()
			return
		}
		ev := ts.queue[0]
		ts.queue = ts.queue[1:]
		subs := make([]*Subscription, len(ts.subs))
		copy(subs, ts.subs)
		h.mu.Unlock()

		for _, s := range subs {
			s.cb(ev)
		}
	}
}

func (h *Hub) removeTopicOrder(topic string) {
	for i, t := range h.topicOrder {
		if t == topic {
			h.topicOrder = append(h.topicOrder[:i], h.topicOrder[i+1:]...)
			return
		}
	}
}

// waiterCount is used by tests to assert no waiter leaks
func (h *Hub) waiterCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.waiters)
}
