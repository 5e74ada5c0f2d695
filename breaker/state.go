package breaker

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// transition a state edge with the reason that triggered it
type transition struct {
	from   State
	to     State
	reason string
}

// stateManager owns the breaker state machine
//
// All mutation happens under the mutex; listener callbacks run after
// the lock is released so listeners may call back into the breaker.
type stateManager struct {
	mu sync.Mutex

	clock clockwork.Clock

	state            State
	failureCount     int
	openedAt         time.Time
	halfOpenInFlight int

	listeners []StateListener
}

func newStateManager(clock clockwork.Clock) *stateManager {
	return &stateManager{
		clock: clock,
		state: StateClosed,
	}
}

// canAttempt decides whether a call may proceed
// Open breakers transition to half-open once the reset window elapses;
// half-open admits at most HalfOpenProbes concurrent probes.
func (m *stateManager) canAttempt(cfg Config) (bool, error) {
	m.mu.Lock()

	switch m.state {
	case StateClosed:
		m.mu.Unlock()
		return true, nil

	case StateOpen:
		if m.clock.Since(m.openedAt) < cfg.ResetTimeout {
			m.mu.Unlock()
			return false, ErrCircuitOpen
		}
		t := m.moveTo(StateHalfOpen, "reset timeout elapsed")
		m.halfOpenInFlight = 1
		listeners := m.copyListeners()
		m.mu.Unlock()
		notify(listeners, t)
		return true, nil

	case StateHalfOpen:
		if m.halfOpenInFlight >= cfg.HalfOpenProbes {
			m.mu.Unlock()
			return false, ErrTooManyProbes
		}
		m.halfOpenInFlight++
		m.mu.Unlock()
		return true, nil
	}

	m.mu.Unlock()
	return false, ErrCircuitOpen
}

// recordSuccess resets the failure count; a half-open success closes the breaker
func (m *stateManager) recordSuccess() (transition, bool) {
	m.mu.Lock()

	m.failureCount = 0
	if m.state != StateHalfOpen {
		m.mu.Unlock()
		return transition{}, false
	}
	m.halfOpenInFlight = 0
	t := m.moveTo(StateClosed, "probe succeeded")
	listeners := m.copyListeners()
	m.mu.Unlock()
	notify(listeners, t)
	return t, true
}

// recordFailure counts a failure; opens at the threshold, reopens from half-open
func (m *stateManager) recordFailure(cfg Config) (transition, bool) {
	m.mu.Lock()

	switch m.state {
	case StateHalfOpen:
		m.halfOpenInFlight = 0
		m.openedAt = m.clock.Now()
		t := m.moveTo(StateOpen, "probe failed")
		listeners := m.copyListeners()
		m.mu.Unlock()
		notify(listeners, t)
		return t, true

	case StateClosed:
		m.failureCount++
		if m.failureCount < cfg.Threshold {
			m.mu.Unlock()
			return transition{}, false
		}
		m.openedAt = m.clock.Now()
		t := m.moveTo(StateOpen, "failure threshold reached")
		listeners := m.copyListeners()
		m.mu.Unlock()
		notify(listeners, t)
		return t, true
	}

	m.mu.Unlock()
	return transition{}, false
}

// reset forces the breaker closed
func (m *stateManager) reset() (transition, bool) {
	m.mu.Lock()

	m.failureCount = 0
	m.halfOpenInFlight = 0
	if m.state == StateClosed {
		m.mu.Unlock()
		return transition{}, false
	}
	t := m.moveTo(StateClosed, "manual reset")
	listeners := m.copyListeners()
	m.mu.Unlock()
	notify(listeners, t)
	return t, true
}

func (m *stateManager) getState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateManager) snapshot(cfg Config) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{
		Name:         cfg.Name,
		State:        m.state,
		FailureCount: m.failureCount,
		Threshold:    cfg.Threshold,
	}
	if !m.openedAt.IsZero() {
		s.OpenedAt = m.openedAt.UnixMilli()
	}
	return s
}

func (m *stateManager) addListener(fn StateListener) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// moveTo must be called with the mutex held
func (m *stateManager) moveTo(to State, reason string) transition {
	t := transition{from: m.state, to: to, reason: reason}
	m.state = to
	return t
}

func (m *stateManager) copyListeners() []StateListener {
	out := make([]StateListener, len(m.listeners))
	copy(out, m.listeners)
	return out
}

func notify(listeners []StateListener, t transition) {
	for _, fn := range listeners {
		fn(t.from, t.to, t.reason)
	}
}
