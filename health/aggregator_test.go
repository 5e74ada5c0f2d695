package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockChecker scripted health checker
type mockChecker struct {
	name string
	err  error
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(ctx context.Context) error { return m.err }

// TestAggregatorCheck verifies the worst individual status wins.
func TestAggregatorCheck(t *testing.T) {
	tests := []struct {
		name     string
		checkers []Checker
		want     Status
	}{
		{
			name:     "no checkers",
			checkers: []Checker{},
			want:     StatusHealthy,
		},
		{
			name: "all healthy",
			checkers: []Checker{
				&mockChecker{name: "connection"},
				&mockChecker{name: "hub"},
			},
			want: StatusHealthy,
		},
		{
			name: "degraded beats healthy",
			checkers: []Checker{
				&mockChecker{name: "connection"},
				&mockChecker{name: "hub", err: Degraded("hub not ready")},
			},
			want: StatusDegraded,
		},
		{
			name: "unhealthy beats degraded",
			checkers: []Checker{
				&mockChecker{name: "connection", err: errors.New("connection lost")},
				&mockChecker{name: "hub", err: Degraded("hub not ready")},
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator(time.Second)
			for _, checker := range tt.checkers {
				agg.Register(checker)
			}

			response := agg.Check(context.Background())

			assert.Equal(t, tt.want, response.Status)
			assert.Len(t, response.Checks, len(tt.checkers))
		})
	}
}

// TestAggregatorClassifiesResults verifies per-check status, message
// and error fields.
func TestAggregatorClassifiesResults(t *testing.T) {
	agg := NewAggregator(time.Second)
	agg.Register(&mockChecker{name: "ok"})
	agg.Register(&mockChecker{name: "slow", err: Degraded("reconnecting")})
	agg.Register(&mockChecker{name: "dead", err: errors.New("gone")})

	response := agg.Check(context.Background())
	require.Len(t, response.Checks, 3)

	assert.Equal(t, StatusHealthy, response.Checks["ok"].Status)
	assert.Equal(t, "OK", response.Checks["ok"].Message)

	assert.Equal(t, StatusDegraded, response.Checks["slow"].Status)
	assert.Contains(t, response.Checks["slow"].Message, "reconnecting")

	assert.Equal(t, StatusUnhealthy, response.Checks["dead"].Status)
	assert.Equal(t, "gone", response.Checks["dead"].Error)
}

// TestAggregatorMetadata verifies metadata is carried on every report.
func TestAggregatorMetadata(t *testing.T) {
	agg := NewAggregator(time.Second)
	agg.SetMetadata("service", "realtime-core")
	agg.SetMetadata("version", "1.0.0")

	response := agg.Check(context.Background())

	assert.Equal(t, "realtime-core", response.Metadata["service"])
	assert.Equal(t, "1.0.0", response.Metadata["version"])
}

// TestResponsePredicates verifies the IsHealthy/IsDegraded helpers.
func TestResponsePredicates(t *testing.T) {
	tests := []struct {
		status       Status
		wantHealthy  bool
		wantDegraded bool
	}{
		{StatusHealthy, true, false},
		{StatusDegraded, false, true},
		{StatusUnhealthy, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			response := &Response{Status: tt.status}
			assert.Equal(t, tt.wantHealthy, response.IsHealthy())
			assert.Equal(t, tt.wantDegraded, response.IsDegraded())
		})
	}
}

// TestDegradedError verifies degraded detection through wrapping.
func TestDegradedError(t *testing.T) {
	err := Degraded("suspended")
	assert.True(t, IsDegraded(err))
	assert.False(t, IsDegraded(errors.New("plain")))
	assert.False(t, IsDegraded(nil))
}
