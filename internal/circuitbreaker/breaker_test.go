package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream unavailable")

func failingCall() (interface{}, error) { return nil, errUpstream }
func healthyCall() (interface{}, error) { return "ok", nil }

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	cb := New(&Config{
		Name:        "engine",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 3 },
	})

	// Two failures: still closed
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(failingCall)
		require.ErrorIs(t, err, errUpstream)
		assert.Equal(t, StateClosed, cb.State())
	}

	// A success resets the consecutive counter
	_, err := cb.Execute(healthyCall)
	require.NoError(t, err)

	// Three consecutive failures trip the breaker
	for i := 0; i < 3; i++ {
		_, err = cb.Execute(failingCall)
		require.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, StateOpen, cb.State())

	// While open, calls are rejected without reaching the upstream
	called := false
	_, err = cb.Execute(func() (interface{}, error) {
		called = true
		return nil, nil
	})
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	cb := New(&Config{
		Name:        "engine",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_, err := cb.Execute(failingCall)
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, StateOpen, cb.State())

	// After the timeout the breaker probes the upstream again
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, StateHalfOpen, cb.State())

	// MaxRequests consecutive successes close it
	for i := 0; i < 2; i++ {
		_, err = cb.Execute(healthyCall)
		require.NoError(t, err)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := New(&Config{
		Name:        "llm",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_, err := cb.Execute(failingCall)
	require.ErrorIs(t, err, errUpstream)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	// One failure during the probe slams the breaker shut again
	_, err = cb.Execute(failingCall)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerHalfOpenLimitsProbes(t *testing.T) {
	cb := New(&Config{
		Name:        "messaging",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     20 * time.Millisecond,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_, err := cb.Execute(failingCall)
	require.ErrorIs(t, err, errUpstream)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	require.NoError(t, cb.Allow())
	_, err = cb.beforeRequest()
	require.NoError(t, err)

	// Second concurrent probe is rejected
	assert.ErrorIs(t, cb.Allow(), ErrTooManyRequests)
}

func TestBreakerRatioTrip(t *testing.T) {
	cb := New(&Config{
		Name:        "messaging",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.Requests >= 5 && c.FailureRatio() > 0.5 },
	})

	// 2 successes + 2 failures: ratio 0.5, not enough
	for i := 0; i < 2; i++ {
		_, err := cb.Execute(healthyCall)
		require.NoError(t, err)
		_, err = cb.Execute(failingCall)
		require.ErrorIs(t, err, errUpstream)
	}
	require.Equal(t, StateClosed, cb.State())

	// Fifth request pushes the ratio over the line
	_, err := cb.Execute(failingCall)
	require.ErrorIs(t, err, errUpstream)
	assert.Equal(t, StateOpen, cb.State())
}

// ============================================================================
// FALLBACK AND MANAGER
// ============================================================================

func TestExecuteWithFallback(t *testing.T) {
	cb := New(&Config{
		Name:        "engine",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	got, err := ExecuteWithFallback(cb,
		func() (string, error) { return "", errUpstream },
		func(err error) (string, error) { return "fallback", nil },
	)
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)

	// Now open: request func must not run, fallback still answers
	require.Equal(t, StateOpen, cb.State())
	called := false
	got, err = ExecuteWithFallback(cb,
		func() (string, error) {
			called = true
			return "live", nil
		},
		func(err error) (string, error) {
			assert.ErrorIs(t, err, ErrCircuitOpen)
			return "fallback", nil
		},
	)
	require.NoError(t, err)
	assert.False(t, called)
	assert.Equal(t, "fallback", got)
}

func TestManagerReusesBreakers(t *testing.T) {
	m := NewManager(nil)

	a := m.GetOrCreate("engine", DefaultConfig("engine"))
	b := m.GetOrCreate("engine", DefaultConfig("engine"))
	assert.Same(t, a, b)

	names := m.List()
	assert.Contains(t, names, "engine")

	stats := m.Stats()
	require.Contains(t, stats, "engine")
	assert.Equal(t, StateClosed, stats["engine"].State)
}

func TestServiceBreakersHealthStatus(t *testing.T) {
	sb := NewServiceBreakers()
	require.NotNil(t, sb.Engine)
	require.NotNil(t, sb.LLM)
	require.NotNil(t, sb.Messaging)

	status, detail := sb.HealthStatus()
	assert.Equal(t, "HEALTHY", status)
	assert.Equal(t, "CLOSED", detail["engine"])

	// Trip the engine breaker and the service degrades
	for i := 0; i < 3; i++ {
		_, err := sb.Engine.Execute(failingCall)
		require.ErrorIs(t, err, errUpstream)
	}
	status, detail = sb.HealthStatus()
	assert.Equal(t, "DEGRADED", status)
	assert.Equal(t, "OPEN", detail["engine"])
}
