package breaker

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records breaker activity through OpenTelemetry instruments.
type Metrics struct {
	mu         sync.RWMutex
	registered bool

	successesTotal   metric.Int64Counter
	failuresTotal    metric.Int64Counter
	rejectionsTotal  metric.Int64Counter
	transitionsTotal metric.Int64Counter
	stateGauge       metric.Int64ObservableGauge

	// State tracking for gauge
	stateFns map[string]func() State
	stateMu  sync.RWMutex
}

// NewMetrics creates an unregistered metrics recorder
func NewMetrics() *Metrics {
	return &Metrics{
		stateFns: make(map[string]func() State),
	}
}

// Register creates the instruments on the provided Meter (idempotent)
func (m *Metrics) Register(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	var err error

	m.successesTotal, err = meter.Int64Counter(
		"breaker_successes_total",
		metric.WithDescription("Total number of successful protected calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	m.failuresTotal, err = meter.Int64Counter(
		"breaker_failures_total",
		metric.WithDescription("Total number of failed protected calls"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	m.rejectionsTotal, err = meter.Int64Counter(
		"breaker_rejections_total",
		metric.WithDescription("Total number of fast-failed calls (circuit open)"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return err
	}

	m.transitionsTotal, err = meter.Int64Counter(
		"breaker_state_transitions_total",
		metric.WithDescription("Total number of breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return err
	}

	m.stateGauge, err = meter.Int64ObservableGauge(
		"breaker_state",
		metric.WithDescription("Current circuit breaker state (0=closed, 1=open, 2=half-open)"),
		metric.WithInt64Callback(m.collectState),
	)
	if err != nil {
		return err
	}

	m.registered = true
	return nil
}

// collectState is the callback for the observable gauge
func (m *Metrics) collectState(_ context.Context, observer metric.Int64Observer) error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	for name, fn := range m.stateFns {
		observer.Observe(int64(fn()),
			metric.WithAttributes(attribute.String("breaker", name)),
		)
	}
	return nil
}

func (m *Metrics) observeState(name string, fn func() State) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.stateFns[name] = fn
}

func (m *Metrics) recordSuccess(ctx context.Context, name string) {
	if !m.isRegistered() {
		return
	}
	m.successesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}

func (m *Metrics) recordFailure(ctx context.Context, name string) {
	if !m.isRegistered() {
		return
	}
	m.failuresTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}

func (m *Metrics) recordRejection(ctx context.Context, name string) {
	if !m.isRegistered() {
		return
	}
	m.rejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("breaker", name)))
}

func (m *Metrics) recordTransition(ctx context.Context, name string, from, to State) {
	if !m.isRegistered() {
		return
	}
	m.transitionsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("breaker", name),
		attribute.String("from", from.String()),
		attribute.String("to", to.String()),
	))
}

func (m *Metrics) isRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}
