package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerStartsClosed(t *testing.T) {
	cb := New(Config{})
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.AllowRequest())
}

func TestCircuitBreakerTripsAfterThreshold(t *testing.T) {
	cb := New(Config{FailureThreshold: 3})

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(2), cb.FailureCount())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.AllowRequest())
}

func TestCircuitBreakerSuccessResetsFailureCountWhileClosed(t *testing.T) {
	cb := New(Config{FailureThreshold: 3})
	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, int64(0), cb.FailureCount())
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreakerHalfOpensAfterTimeout(t *testing.T) {
	restore := fakeNow(t)
	defer restore()

	cb := New(Config{FailureThreshold: 1, OpenTimeout: 10 * time.Second})
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())
	require.False(t, cb.AllowRequest())

	advanceFakeNow(11 * time.Second)
	assert.True(t, cb.AllowRequest())
	assert.Equal(t, StateHalfOpen, cb.State())
}

func TestCircuitBreakerReclosesAfterSuccessThreshold(t *testing.T) {
	restore := fakeNow(t)
	defer restore()

	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})
	cb.RecordFailure()
	advanceFakeNow(2 * time.Second)
	require.True(t, cb.AllowRequest())
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordSuccess()
	assert.Equal(t, StateHalfOpen, cb.State())
	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(0), cb.FailureCount())
}

func TestCircuitBreakerReopensOnFailureDuringHalfOpen(t *testing.T) {
	restore := fakeNow(t)
	defer restore()

	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 2, OpenTimeout: time.Second})
	cb.RecordFailure()
	advanceFakeNow(2 * time.Second)
	require.True(t, cb.AllowRequest())
	require.Equal(t, StateHalfOpen, cb.State())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
}

func TestCircuitBreakerReset(t *testing.T) {
	cb := New(Config{FailureThreshold: 1})
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, int64(0), cb.FailureCount())
	assert.Equal(t, int64(0), cb.SuccessCount())
}

// fakeNow swaps the package's clock source for a controllable one and
// returns a restore func. advanceFakeNow moves it forward.
var fakeClock int64

func fakeNow(t *testing.T) func() {
	t.Helper()
	original := nowNano
	fakeClock = time.Now().UnixNano()
	nowNano = func() int64 { return fakeClock }
	return func() { nowNano = original }
}

func advanceFakeNow(d time.Duration) {
	fakeClock += int64(d)
}
