package realtime

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/jaajung-kjs/realtime-core/transport"
	"github.com/jaajung-kjs/realtime-core/transport/transporttest"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.NewFake()
	clock := clockwork.NewFakeClock()
	connCfg := connection.Config{}
	connCfg.ApplyDefaults()
	core := connection.NewCore(connCfg, fake, connection.WithClock(clock))
	hub := NewHub(Config{}, core, fake)
	t.Cleanup(func() {
		_ = hub.Close()
		_ = core.Close()
	})
	return hub, fake
}

func readyStatus(epoch int64) connection.Status {
	return connection.Status{State: connection.StateConnected, Visible: true, Epoch: epoch}
}

// TestOnReadyFiresOncePerEdge verifies duplicate ready notifications
// trigger listeners exactly once.
func TestOnReadyFiresOncePerEdge(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))

	var fired atomic.Int32
	hub.OnReady(func() { fired.Add(1) })

	hub.onStatus(readyStatus(1))
	hub.onStatus(readyStatus(1))

	assert.Equal(t, int32(1), fired.Load(), "duplicate ready must be a no-op")

	// a full false->true cycle is a new edge
	hub.onStatus(connection.Status{State: connection.StateError, Visible: true, Epoch: 1})
	hub.onStatus(readyStatus(1))
	assert.Equal(t, int32(2), fired.Load())
}

// TestPendingSubscriptionsDrainFIFO verifies subscriptions queued
// before readiness are registered in enqueue order, exactly once.
func TestPendingSubscriptionsDrainFIFO(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))

	noop := func(transport.ChangeEvent) {}
	subA, err := hub.Subscribe("alpha", "", noop)
	require.NoError(t, err)
	_, err = hub.Subscribe("bravo", "", noop)
	require.NoError(t, err)
	_, err = hub.Subscribe("charlie", "", noop)
	require.NoError(t, err)
	require.NotNil(t, subA)
	require.Empty(t, fake.SubscribeOrder(), "nothing registered before ready")

	hub.onStatus(readyStatus(1))
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, fake.SubscribeOrder())

	// a second edge must not register them again
	hub.onStatus(connection.Status{State: connection.StateError, Visible: true, Epoch: 1})
	hub.onStatus(readyStatus(1))
	assert.Equal(t, []string{"alpha", "bravo", "charlie"}, fake.SubscribeOrder())
}

// TestReadinessRequiresConnectedAndVisible verifies both conditions
// must hold simultaneously.
func TestReadinessRequiresConnectedAndVisible(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))

	cases := []struct {
		name    string
		status  connection.Status
		isReady bool
	}{
		{"connected and visible", connection.Status{State: connection.StateConnected, Visible: true, Epoch: 1}, true},
		{"connected but hidden", connection.Status{State: connection.StateConnected, Visible: false, Epoch: 1}, false},
		{"visible but connecting", connection.Status{State: connection.StateConnecting, Visible: true, Epoch: 1}, false},
		{"visible but error", connection.Status{State: connection.StateError, Visible: true, Epoch: 1}, false},
		{"hidden and disconnected", connection.Status{State: connection.StateDisconnected, Visible: false, Epoch: 1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hub.onStatus(tc.status)
			assert.Equal(t, tc.isReady, hub.IsReady())
		})
	}
}

// TestWaitForReadyTimeout verifies a bounded wait fails in time and
// leaves no waiter behind.
func TestWaitForReadyTimeout(t *testing.T) {
	hub, _ := newTestHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := hub.WaitForReady(ctx)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrReadyTimeout)
	assert.Less(t, elapsed, time.Second)
	assert.Zero(t, hub.waiterCount(), "timed-out waiter must be removed")
}

// TestWaitForReadyResolvesOnEdge verifies concurrent waiters all
// resolve on the readiness edge.
func TestWaitForReadyResolvesOnEdge(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			results <- hub.WaitForReady(ctx)
		}()
	}

	require.Eventually(t, func() bool { return hub.waiterCount() == 3 },
		2*time.Second, 5*time.Millisecond)

	hub.onStatus(readyStatus(1))
	for i := 0; i < 3; i++ {
		assert.NoError(t, <-results)
	}
	assert.Zero(t, hub.waiterCount())

	// already ready: immediate
	assert.NoError(t, hub.WaitForReady(context.Background()))
}

// TestSubscribeImmediateWhenReady verifies a ready hub registers the
// topic synchronously and dedupes the backend call per topic.
func TestSubscribeImmediateWhenReady(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))
	hub.onStatus(readyStatus(1))

	noop := func(transport.ChangeEvent) {}
	_, err := hub.Subscribe("messages", "room=1", noop)
	require.NoError(t, err)
	_, err = hub.Subscribe("messages", "room=1", noop)
	require.NoError(t, err)

	assert.Equal(t, []string{"messages"}, fake.SubscribeOrder(),
		"one backend subscription per topic")
}

// TestSubscribeFailureIsolated verifies a rejected topic does not
// affect other topics.
func TestSubscribeFailureIsolated(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))
	hub.onStatus(readyStatus(1))

	fake.FailSubscribe(errors.New("topic rejected"))

	noop := func(transport.ChangeEvent) {}
	_, err := hub.Subscribe("bad", "", noop)
	require.Error(t, err)

	sub, err := hub.Subscribe("good", "", noop)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, []string{"good"}, fake.SubscribeOrder())
}

// TestUnsubscribe verifies the last handle of a topic drops the backend
// subscription and pending handles can be withdrawn before readiness.
func TestUnsubscribe(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))

	noop := func(transport.ChangeEvent) {}

	t.Run("pending withdrawal", func(t *testing.T) {
		sub, err := hub.Subscribe("queued", "", noop)
		require.NoError(t, err)
		hub.Unsubscribe(sub)
		hub.onStatus(readyStatus(1))
		assert.NotContains(t, fake.SubscribeOrder(), "queued")
	})

	t.Run("last handle drops backend topic", func(t *testing.T) {
		s1, err := hub.Subscribe("messages", "", noop)
		require.NoError(t, err)
		s2, err := hub.Subscribe("messages", "", noop)
		require.NoError(t, err)

		hub.Unsubscribe(s1)
		assert.Empty(t, fake.Unsubscribed())

		hub.Unsubscribe(s2)
		assert.Equal(t, []string{"messages"}, fake.Unsubscribed())
	})
}

// TestDispatchInRegistrationOrder verifies callbacks for one topic run
// in registration order for every event, and per-topic event order is
// preserved.
func TestDispatchInRegistrationOrder(t *testing.T) {
	hub, fake := newTestHub(t)
	require.NoError(t, fake.Open(context.Background()))
	hub.onStatus(readyStatus(1))

	type delivery struct {
		listener string
		action   transport.Action
	}
	got := make(chan delivery, 16)

	_, err := hub.Subscribe("messages", "", func(ev transport.ChangeEvent) {
		got <- delivery{"first", ev.Action}
	})
	require.NoError(t, err)
	_, err = hub.Subscribe("messages", "", func(ev transport.ChangeEvent) {
		got <- delivery{"second", ev.Action}
	})
	require.NoError(t, err)

	fake.Emit(transport.ChangeEvent{Topic: "messages", Action: transport.ActionInsert})
	fake.Emit(transport.ChangeEvent{Topic: "messages", Action: transport.ActionDelete})

	want := []delivery{
		{"first", transport.ActionInsert},
		{"second", transport.ActionInsert},
		{"first", transport.ActionDelete},
		{"second", transport.ActionDelete},
	}
	for _, w := range want {
		select {
		case d := <-got:
			assert.Equal(t, w, d)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for delivery %+v", w)
		}
	}
}

// TestCloseIdempotent verifies Close twice is safe and later calls are
// rejected.
func TestCloseIdempotent(t *testing.T) {
	hub, _ := newTestHub(t)

	require.NoError(t, hub.Close())
	require.NoError(t, hub.Close())

	_, err := hub.Subscribe("messages", "", func(transport.ChangeEvent) {})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, hub.WaitForReady(context.Background()), ErrClosed)
}
