package component

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLoader minimal ConfigLoader for lifecycle tests
type fakeLoader struct{}

func (fakeLoader) Get(string) interface{}                 { return nil }
func (fakeLoader) UnmarshalKey(string, interface{}) error { return nil }
func (fakeLoader) GetString(string) string                { return "" }
func (fakeLoader) GetInt(string) int                      { return 0 }
func (fakeLoader) GetBool(string) bool                    { return false }
func (fakeLoader) IsSet(string) bool                      { return false }

// fakeComponent records lifecycle calls into a shared journal
type fakeComponent struct {
	name    string
	deps    []string
	initErr error

	mu      *sync.Mutex
	journal *[]string
}

func (f *fakeComponent) Name() string        { return f.name }
func (f *fakeComponent) DependsOn() []string { return f.deps }

func (f *fakeComponent) Init(_ context.Context, _ ConfigLoader) error {
	f.record("init:" + f.name)
	return f.initErr
}

func (f *fakeComponent) Start(context.Context) error {
	f.record("start:" + f.name)
	return nil
}

func (f *fakeComponent) Stop(context.Context) error {
	f.record("stop:" + f.name)
	return nil
}

func (f *fakeComponent) record(entry string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	*f.journal = append(*f.journal, entry)
}

func newJournal() (*sync.Mutex, *[]string) {
	return &sync.Mutex{}, &[]string{}
}

func indexOf(journal []string, entry string) int {
	for i, e := range journal {
		if e == entry {
			return i
		}
	}
	return -1
}

// TestRegistryRegisterRejectsDuplicates verifies duplicate and empty
// names fail while lookup works for registered components.
func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	mu, journal := newJournal()
	reg := NewRegistry()

	a := &fakeComponent{name: "a", mu: mu, journal: journal}
	require.NoError(t, reg.Register(a))
	require.Error(t, reg.Register(&fakeComponent{name: "a", mu: mu, journal: journal}))
	require.Error(t, reg.Register(&fakeComponent{name: "", mu: mu, journal: journal}))
	require.Error(t, reg.Register(nil))

	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Same(t, a, got)
	assert.True(t, reg.Has("a"))
	assert.False(t, reg.Has("b"))
}

// TestRegistryResolveOrdersByDependency verifies topological ordering
// across three chained components.
func TestRegistryResolveOrdersByDependency(t *testing.T) {
	mu, journal := newJournal()
	reg := NewRegistry()

	require.NoError(t, reg.Register(&fakeComponent{name: "hub", deps: []string{"connection"}, mu: mu, journal: journal}))
	require.NoError(t, reg.Register(&fakeComponent{name: "transport", mu: mu, journal: journal}))
	require.NoError(t, reg.Register(&fakeComponent{name: "connection", deps: []string{"transport"}, mu: mu, journal: journal}))

	order, err := reg.Resolve()
	require.NoError(t, err)
	require.Len(t, order, 3)
	assert.Equal(t, "transport", order[0].Name())
	assert.Equal(t, "connection", order[1].Name())
	assert.Equal(t, "hub", order[2].Name())
}

// TestRegistryDetectsCycle verifies circular dependencies are reported
// instead of deadlocking.
func TestRegistryDetectsCycle(t *testing.T) {
	mu, journal := newJournal()
	reg := NewRegistry()

	require.NoError(t, reg.Register(&fakeComponent{name: "a", deps: []string{"b"}, mu: mu, journal: journal}))
	require.NoError(t, reg.Register(&fakeComponent{name: "b", deps: []string{"a"}, mu: mu, journal: journal}))

	_, err := reg.Resolve()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circular")
}

// TestRegistryMissingDependency verifies a hard dependency on an
// unregistered component fails while an optional one is skipped.
func TestRegistryMissingDependency(t *testing.T) {
	t.Run("hard dependency fails", func(t *testing.T) {
		mu, journal := newJournal()
		reg := NewRegistry()
		require.NoError(t, reg.Register(&fakeComponent{name: "hub", deps: []string{"connection"}, mu: mu, journal: journal}))

		_, err := reg.Resolve()
		require.Error(t, err)
	})

	t.Run("optional dependency skipped", func(t *testing.T) {
		mu, journal := newJournal()
		reg := NewRegistry()
		require.NoError(t, reg.Register(&fakeComponent{name: "hub", deps: []string{"optional:health"}, mu: mu, journal: journal}))

		order, err := reg.Resolve()
		require.NoError(t, err)
		require.Len(t, order, 1)
	})
}

// TestRegistryLifecycleOrder verifies Init/Start run in dependency
// order and Stop runs in reverse.
func TestRegistryLifecycleOrder(t *testing.T) {
	mu, journal := newJournal()
	reg := NewRegistry()

	require.NoError(t, reg.Register(&fakeComponent{name: "transport", mu: mu, journal: journal}))
	require.NoError(t, reg.Register(&fakeComponent{name: "connection", deps: []string{"transport"}, mu: mu, journal: journal}))

	ctx := context.Background()
	require.NoError(t, reg.Init(ctx, fakeLoader{}))
	require.NoError(t, reg.Start(ctx))
	require.NoError(t, reg.Stop(ctx))

	mu.Lock()
	defer mu.Unlock()
	assert.Less(t, indexOf(*journal, "init:transport"), indexOf(*journal, "init:connection"))
	assert.Less(t, indexOf(*journal, "start:transport"), indexOf(*journal, "start:connection"))
	assert.Less(t, indexOf(*journal, "stop:connection"), indexOf(*journal, "stop:transport"))
}

// TestRegistryInitFailureAborts verifies an Init error stops the
// rollout and names the failing component.
func TestRegistryInitFailureAborts(t *testing.T) {
	mu, journal := newJournal()
	reg := NewRegistry()

	boom := errors.New("boom")
	require.NoError(t, reg.Register(&fakeComponent{name: "transport", initErr: boom, mu: mu, journal: journal}))
	require.NoError(t, reg.Register(&fakeComponent{name: "connection", deps: []string{"transport"}, mu: mu, journal: journal}))

	err := reg.Init(context.Background(), fakeLoader{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "transport")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, -1, indexOf(*journal, "init:connection"))
}

// TestRegistryGetTyped verifies the generic accessor and its panic
// variant.
func TestRegistryGetTyped(t *testing.T) {
	mu, journal := newJournal()
	reg := NewRegistry()
	require.NoError(t, reg.Register(&fakeComponent{name: "transport", mu: mu, journal: journal}))

	typed, ok := GetTyped[*fakeComponent](reg, "transport")
	require.True(t, ok)
	assert.Equal(t, "transport", typed.Name())

	_, ok = GetTyped[*fakeComponent](reg, "missing")
	assert.False(t, ok)

	assert.Panics(t, func() { MustGetTyped[*fakeComponent](reg, "missing") })
}
