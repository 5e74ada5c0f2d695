package feature

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jaajung-kjs/realtime-core/connection"
	"github.com/jaajung-kjs/realtime-core/realtime"
	"github.com/jaajung-kjs/realtime-core/transport"
	"github.com/jaajung-kjs/realtime-core/transport/transporttest"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	hub  *realtime.Hub
	core *connection.Core
	fake *transporttest.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := transporttest.NewFake()
	clock := clockwork.NewFakeClock()
	connCfg := connection.Config{}
	connCfg.ApplyDefaults()
	core := connection.NewCore(connCfg, fake, connection.WithClock(clock))
	hub := realtime.NewHub(realtime.Config{}, core, fake)
	require.NoError(t, hub.Start())
	t.Cleanup(func() {
		_ = hub.Close()
		_ = core.Close()
	})
	return &testEnv{hub: hub, core: core, fake: fake}
}

// fastRetry keeps test retries quick on the real clock
func fastRetry() Config {
	return Config{
		MaxAttempts:  3,
		RetryBase:    5 * time.Millisecond,
		RetryMax:     20 * time.Millisecond,
		ReadyTimeout: 50 * time.Millisecond,
	}
}

type keyRecorder struct {
	mu   sync.Mutex
	keys []string
}

func (r *keyRecorder) invalidate(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, key)
}

func (r *keyRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// TestInitializeActivatesWhenReady verifies the happy path and that
// change events become invalidation keys.
func TestInitializeActivatesWhenReady(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.core.Connect(context.Background()))
	require.Eventually(t, env.hub.IsReady, 2*time.Second, 5*time.Millisecond)

	rec := &keyRecorder{}
	mgr := NewMessagesManager(env.hub, rec.invalidate, fastRetry())
	require.NoError(t, mgr.Initialize(context.Background()))
	assert.Equal(t, StateActive, mgr.State())
	assert.Equal(t, []string{TopicMessages}, env.fake.SubscribeOrder())

	env.fake.Emit(transport.ChangeEvent{
		Topic:  TopicMessages,
		Action: transport.ActionInsert,
		Record: map[string]any{"conversation_id": "c42", "recipient_id": "u7"},
	})

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{
		"messages:list",
		"messages:conversation:c42",
		"messages:unread:u7",
	}, rec.snapshot())
}

// TestInitializeIdempotent verifies repeated Initialize calls do not
// re-register the topic.
func TestInitializeIdempotent(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.core.Connect(context.Background()))
	require.Eventually(t, env.hub.IsReady, 2*time.Second, 5*time.Millisecond)

	mgr := NewNotificationsManager(env.hub, func(string) {}, fastRetry())
	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.Initialize(context.Background()))

	assert.Equal(t, []string{TopicNotifications}, env.fake.SubscribeOrder())
}

// TestInitializeRetriesThenFails verifies the bounded retry budget:
// readiness never arrives, the manager retries, then degrades to
// failed without blocking.
func TestInitializeRetriesThenFails(t *testing.T) {
	env := newTestEnv(t)
	// never connected: WaitForReady times out every attempt

	mgr := NewContentManager(env.hub, func(string) {}, fastRetry())

	start := time.Now()
	err := mgr.Initialize(context.Background())
	require.ErrorIs(t, err, ErrInitFailed)
	require.ErrorIs(t, err, realtime.ErrReadyTimeout)
	assert.Equal(t, StateFailed, mgr.State())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Empty(t, env.fake.SubscribeOrder())
}

// TestInitializeRecoversOnLateReadiness verifies readiness arriving
// between attempts lets a retry succeed.
func TestInitializeRecoversOnLateReadiness(t *testing.T) {
	env := newTestEnv(t)

	cfg := fastRetry()
	cfg.ReadyTimeout = 30 * time.Millisecond
	cfg.MaxAttempts = 10
	mgr := NewMessagesManager(env.hub, func(string) {}, cfg)

	done := make(chan error, 1)
	go func() { done <- mgr.Initialize(context.Background()) }()

	// let at least one attempt time out first
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, env.core.Connect(context.Background()))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("initialization did not complete after readiness")
	}
	assert.Equal(t, StateActive, mgr.State())
}

// TestShutdownResetsAndAllowsReinit verifies teardown returns to
// uninitialized, drops the topic, and clears a failed budget.
func TestShutdownResetsAndAllowsReinit(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.core.Connect(context.Background()))
	require.Eventually(t, env.hub.IsReady, 2*time.Second, 5*time.Millisecond)

	mgr := NewMessagesManager(env.hub, func(string) {}, fastRetry())
	require.NoError(t, mgr.Initialize(context.Background()))

	mgr.Shutdown()
	assert.Equal(t, StateUninitialized, mgr.State())
	assert.Equal(t, []string{TopicMessages}, env.fake.Unsubscribed())

	require.NoError(t, mgr.Initialize(context.Background()))
	assert.Equal(t, StateActive, mgr.State())
}

// TestKeyMappings exercises the per-feature key derivations, including
// the old-record fallback for deletes.
func TestKeyMappings(t *testing.T) {
	t.Run("notifications", func(t *testing.T) {
		keys := notificationKeys(transport.ChangeEvent{
			Topic:  TopicNotifications,
			Action: transport.ActionInsert,
			Record: map[string]any{"user_id": "u1"},
		})
		assert.Equal(t, []string{
			"notifications:list",
			"notifications:user:u1",
			"notifications:unread:u1",
		}, keys)
	})

	t.Run("content delete uses old record", func(t *testing.T) {
		keys := contentKeys(transport.ChangeEvent{
			Topic:     TopicContent,
			Action:    transport.ActionDelete,
			OldRecord: map[string]any{"id": "p9", "category": "notice"},
		})
		assert.Equal(t, []string{
			"content:list",
			"content:post:p9",
			"content:category:notice",
		}, keys)
	})

	t.Run("numeric ids are stringified", func(t *testing.T) {
		keys := contentKeys(transport.ChangeEvent{
			Topic:  TopicContent,
			Action: transport.ActionUpdate,
			Record: map[string]any{"id": float64(7)},
		})
		assert.Contains(t, keys, "content:post:7")
	})
}
