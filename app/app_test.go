package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/jaajung-kjs/realtime-core/health"
	"github.com/jaajung-kjs/realtime-core/transport"
	"github.com/jaajung-kjs/realtime-core/transport/transporttest"
	"github.com/samber/do/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestApp builds an app over a fake transport so nothing dials
func newTestApp(t *testing.T, opts ...Option) (*App, *transporttest.Fake) {
	t.Helper()

	fake := transporttest.NewFake()
	a := New(opts...)
	do.Override(a.Injector(), func(do.Injector) (*transport.Component, error) {
		return transport.NewComponent(transport.WithTransport(fake)), nil
	})
	return a, fake
}

// TestAppInitIdempotent verifies a second Init is a no-op returning
// the first outcome.
func TestAppInitIdempotent(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Init(ctx))
	registry := a.Registry()
	require.NotNil(t, registry)

	require.NoError(t, a.Init(ctx))
	assert.Same(t, registry, a.Registry())
	assert.Equal(t, StateInitialized, a.State())

	require.NoError(t, a.Shutdown(ctx))
}

// TestAppStartConnects verifies Start brings the stack up and the
// connection reaches Connected over the fake transport.
func TestAppStartConnects(t *testing.T) {
	a, fake := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	assert.Equal(t, StateRunning, a.State())

	core := a.Core()
	require.NotNil(t, core)
	assert.Equal(t, connection.StateConnected, core.Status().State)
	assert.Equal(t, 1, fake.OpenCalls())

	require.NotNil(t, a.Hub())
	assert.Len(t, a.Features(), 3)

	resp := a.Health(ctx)
	require.NotNil(t, resp)
	assert.NotEqual(t, health.StatusUnhealthy, resp.Status)

	require.NoError(t, a.Shutdown(ctx))
	assert.Equal(t, StateStopped, a.State())
}

// TestAppShutdownIdempotent verifies repeated Shutdown calls are safe.
func TestAppShutdownIdempotent(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Shutdown(ctx))
	require.NoError(t, a.Shutdown(ctx))
	assert.Equal(t, StateStopped, a.State())
}

// TestAppCallbacks verifies ready and shutdown callbacks fire once in
// order.
func TestAppCallbacks(t *testing.T) {
	var mu sync.Mutex
	var calls []string

	a, _ := newTestApp(t,
		WithName("realtimed-test"),
		WithOnReady(func(*App) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "ready")
			return nil
		}),
		WithOnShutdown(func(context.Context) error {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, "shutdown")
			return nil
		}),
	)

	ctx := context.Background()
	require.NoError(t, a.Start(ctx))
	require.NoError(t, a.Shutdown(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ready", "shutdown"}, calls)
}

// TestAppInvalidatorReceivesKeys verifies change events reach the
// configured invalidator through the whole stack.
func TestAppInvalidatorReceivesKeys(t *testing.T) {
	var mu sync.Mutex
	keys := make(map[string]bool)

	a, fake := newTestApp(t, WithInvalidator(func(key string) {
		mu.Lock()
		defer mu.Unlock()
		keys[key] = true
	}))
	ctx := context.Background()

	require.NoError(t, a.Start(ctx))
	defer a.Shutdown(ctx)

	// wait for the messages feature to subscribe
	require.Eventually(t, func() bool {
		_, ok := fake.Subscriptions()["messages"]
		return ok
	}, 5*time.Second, 10*time.Millisecond)

	fake.Emit(transport.ChangeEvent{
		Topic:  "messages",
		Action: transport.ActionInsert,
		Record: map[string]interface{}{"conversation_id": "c1", "recipient_id": "u2"},
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return keys["messages:list"]
	}, 5*time.Second, 10*time.Millisecond)
}
