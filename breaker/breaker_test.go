package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var errBoom = errors.New("boom")

func newTestBreaker(t *testing.T, cfg Config) (*Breaker, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	return New(cfg, WithClock(clock)), clock
}

// TestBreakerStaysClosedBelowThreshold verifies failures below the
// threshold keep the breaker closed and calls keep flowing.
func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Name: "conn", Threshold: 3, ResetTimeout: time.Minute})

	fail := func(ctx context.Context) error { return errBoom }

	for i := 0; i < 2; i++ {
		err := b.Execute(context.Background(), fail)
		assert.ErrorIs(t, err, errBoom)
	}

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 2, b.Snapshot().FailureCount)
}

// TestBreakerOpensAtThreshold verifies the breaker opens after the
// configured number of consecutive failures and subsequent calls fail
// fast without invoking the operation.
func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Name: "conn", Threshold: 3, ResetTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		err := b.Execute(context.Background(), func(ctx context.Context) error { return errBoom })
		assert.ErrorIs(t, err, errBoom)
	}
	assert.Equal(t, StateOpen, b.State())

	invoked := false
	err := b.Execute(context.Background(), func(ctx context.Context) error {
		invoked = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked, "operation must not run while open")
}

// TestBreakerSuccessResetsFailureCount verifies any success zeroes the
// consecutive-failure counter.
func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Name: "conn", Threshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.NoError(t, b.Execute(ctx, func(ctx context.Context) error { return nil }))

	assert.Equal(t, 0, b.Snapshot().FailureCount)

	// two more failures still stay below the threshold
	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	assert.Equal(t, StateClosed, b.State())
}

// TestBreakerHalfOpenProbe verifies the open breaker admits a probe after
// the reset timeout; a successful probe closes the breaker.
func TestBreakerHalfOpenProbe(t *testing.T) {
	b, clock := newTestBreaker(t, Config{Name: "conn", Threshold: 2, ResetTimeout: 30 * time.Second})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.Equal(t, StateOpen, b.State())

	// still inside the cool-down window
	clock.Advance(29 * time.Second)
	err := b.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	// window elapsed, probe allowed and succeeds
	clock.Advance(time.Second)
	err = b.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Snapshot().FailureCount)
}

// TestBreakerFailedProbeReopens verifies a failed half-open probe reopens
// the breaker and restarts the cool-down.
func TestBreakerFailedProbeReopens(t *testing.T) {
	b, clock := newTestBreaker(t, Config{Name: "conn", Threshold: 1, ResetTimeout: 10 * time.Second})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.Equal(t, StateOpen, b.State())

	clock.Advance(10 * time.Second)
	err := b.Execute(ctx, func(ctx context.Context) error { return errBoom })
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	// cool-down restarted from the failed probe
	clock.Advance(9 * time.Second)
	err = b.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(time.Second)
	err = b.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, b.State())
}

// TestBreakerHalfOpenProbeLimit verifies half-open admits at most the
// configured number of concurrent probes.
func TestBreakerHalfOpenProbeLimit(t *testing.T) {
	b, clock := newTestBreaker(t, Config{Name: "conn", Threshold: 1, ResetTimeout: time.Second, HalfOpenProbes: 1})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	clock.Advance(time.Second)

	probeStarted := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(ctx context.Context) error {
			close(probeStarted)
			<-release
			return nil
		})
	}()

	<-probeStarted
	// second call while the probe is in flight
	err := b.Execute(ctx, func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTooManyProbes)

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State())
}

// TestBreakerStateListener verifies listeners observe every edge.
func TestBreakerStateListener(t *testing.T) {
	b, clock := newTestBreaker(t, Config{Name: "conn", Threshold: 1, ResetTimeout: time.Second})
	ctx := context.Background()

	type edge struct{ from, to State }
	var edges []edge
	b.OnStateChange(func(from, to State, reason string) {
		edges = append(edges, edge{from, to})
	})

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	clock.Advance(time.Second)
	require.NoError(t, b.Execute(ctx, func(ctx context.Context) error { return nil }))

	require.Len(t, edges, 3)
	assert.Equal(t, edge{StateClosed, StateOpen}, edges[0])
	assert.Equal(t, edge{StateOpen, StateHalfOpen}, edges[1])
	assert.Equal(t, edge{StateHalfOpen, StateClosed}, edges[2])
}

// TestBreakerReset verifies a manual reset closes the breaker immediately.
func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(t, Config{Name: "conn", Threshold: 1, ResetTimeout: time.Hour})
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.Equal(t, StateOpen, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Execute(ctx, func(ctx context.Context) error { return nil }))
}

// TestBreakerConfigDefaults verifies zero values are filled in.
func TestBreakerConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, DefaultThreshold, cfg.Threshold)
	assert.Equal(t, DefaultResetTimeout, cfg.ResetTimeout)
	assert.Equal(t, DefaultHalfOpenProbes, cfg.HalfOpenProbes)
	assert.NoError(t, cfg.Validate())
}

// TestBreakerConfigValidate verifies invalid configs are rejected.
func TestBreakerConfigValidate(t *testing.T) {
	cfg := Config{Name: "", Threshold: 3, ResetTimeout: time.Second, HalfOpenProbes: 1}
	assert.Error(t, cfg.Validate())
}

// TestBreakerMetrics verifies the breaker records through a registered
// metrics provider without error.
func TestBreakerMetrics(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	m := NewMetrics()
	require.NoError(t, m.Register(provider.Meter("test")))
	require.True(t, m.isRegistered())

	clock := clockwork.NewFakeClock()
	b := New(Config{Name: "conn", Threshold: 1, ResetTimeout: time.Second}, WithClock(clock), WithMetrics(m))
	ctx := context.Background()

	require.Error(t, b.Execute(ctx, func(ctx context.Context) error { return errBoom }))
	require.ErrorIs(t, b.Execute(ctx, func(ctx context.Context) error { return nil }), ErrCircuitOpen)
	clock.Advance(time.Second)
	require.NoError(t, b.Execute(ctx, func(ctx context.Context) error { return nil }))
}
