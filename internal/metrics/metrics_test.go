package metrics_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/boredhf/conexus/internal/breaker"
	"github.com/boredhf/conexus/internal/metrics"
)

func TestMetricsAccumulate(t *testing.T) {
	m := metrics.New()

	m.RecordEventBroadcast("conexus.ServerStatusEvent", 10*time.Millisecond, true)
	m.RecordEventBroadcast("conexus.ServerStatusEvent", 30*time.Millisecond, true)
	m.RecordEventFailed()
	m.RecordMessageSent()
	m.RecordMessageReceived()
	m.RecordRequestTimeout()
	m.RecordCircuitBreakerTrip()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.EventsBroadcast)
	assert.Equal(t, int64(2), snap.EventsProcessed)
	assert.Equal(t, int64(2), snap.EventsDelivered)
	assert.Equal(t, int64(1), snap.EventsFailed)
	assert.Equal(t, int64(1), snap.MessagesSent)
	assert.Equal(t, int64(1), snap.MessagesReceived)
	assert.Equal(t, int64(1), snap.RequestsTimedOut)
	assert.Equal(t, int64(1), snap.CircuitBreakerTrips)
	assert.Equal(t, 20*time.Millisecond, snap.AverageBroadcastLatency)
	assert.Equal(t, 10*time.Millisecond, snap.MinProcessingTime)
	assert.Equal(t, 30*time.Millisecond, snap.MaxProcessingTime)
	assert.Equal(t, int64(2), snap.PerEventType["conexus.ServerStatusEvent"])
	assert.InDelta(t, 100.0, snap.SuccessRatePercent, 0.001)
}

func TestMetricsSnapshotIsIndependentCopy(t *testing.T) {
	m := metrics.New()
	m.RecordEventBroadcast("type.A", time.Millisecond, true)

	first := m.Snapshot()
	m.RecordEventBroadcast("type.A", time.Millisecond, true)
	second := m.Snapshot()

	assert.Equal(t, int64(1), first.PerEventType["type.A"])
	assert.Equal(t, int64(2), second.PerEventType["type.A"])
}

func TestMetricsRecordEventTypeFailure(t *testing.T) {
	m := metrics.New()
	m.RecordEventTypeFailure("conexus.ServerStatusEvent")
	m.RecordEventTypeFailure("conexus.ServerStatusEvent")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.PerEventTypeFailures["conexus.ServerStatusEvent"])
	assert.Equal(t, int64(2), snap.EventsFailed)
}

func TestMetricsCollectorsRegistered(t *testing.T) {
	m := metrics.New()
	assert.Len(t, m.Collectors(), 4)
}

func TestMetricsFreshSnapshotNeverViolatesMinMax(t *testing.T) {
	m := metrics.New()
	snap := m.Snapshot()
	assert.LessOrEqual(t, snap.MinProcessingTime, snap.MaxProcessingTime)
	assert.Equal(t, time.Duration(0), snap.MinProcessingTime)
	assert.Equal(t, time.Duration(0), snap.MaxProcessingTime)
	assert.Equal(t, 0.0, snap.SuccessRatePercent)
}

func TestMetricsSuccessRateAccountsForFailures(t *testing.T) {
	m := metrics.New()
	m.RecordEventBroadcast("type.A", time.Millisecond, true)
	m.RecordEventBroadcast("type.A", time.Millisecond, true)
	m.RecordEventBroadcast("type.A", time.Millisecond, false)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.EventsProcessed)
	assert.Equal(t, int64(2), snap.EventsBroadcast)
	assert.Equal(t, int64(1), snap.BroadcastFailures)
	assert.InDelta(t, 66.666, snap.SuccessRatePercent, 0.01)
}

func TestMetricsCircuitBreakerStateChangeTracksSince(t *testing.T) {
	m := metrics.New()
	first := m.Snapshot()
	assert.Equal(t, breaker.StateClosed.String(), first.CircuitBreakerState)

	m.RecordCircuitBreakerState(breaker.StateOpen)
	second := m.Snapshot()
	assert.Equal(t, breaker.StateOpen.String(), second.CircuitBreakerState)
	assert.True(t, second.CircuitBreakerStateChangedAt.After(first.CircuitBreakerStateChangedAt) ||
		second.CircuitBreakerStateChangedAt.Equal(first.CircuitBreakerStateChangedAt))

	before := second.CircuitBreakerStateChangedAt
	m.RecordCircuitBreakerState(breaker.StateOpen)
	third := m.Snapshot()
	assert.Equal(t, before, third.CircuitBreakerStateChangedAt)
}
