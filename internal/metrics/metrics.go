// Package metrics tracks fabric-wide counters and exposes them both as
// an immutable in-process snapshot and as Prometheus collectors.
package metrics

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/boredhf/conexus/internal/breaker"
)

// Snapshot is an immutable point-in-time view of the fabric's counters.
// Constructing one never mutates the Metrics it was taken from.
type Snapshot struct {
	StartTime    time.Time
	SnapshotTime time.Time

	EventsProcessed   int64
	EventsBroadcast   int64
	EventsDelivered   int64
	EventsFailed      int64
	BroadcastFailures int64

	MessagesSent     int64
	MessagesReceived int64
	RequestsTimedOut int64

	CircuitBreakerTrips int64
	RetryAttempts       int64

	SuccessRatePercent      float64
	AverageBroadcastLatency time.Duration
	MinProcessingTime       time.Duration
	MaxProcessingTime       time.Duration

	CircuitBreakerState          string
	CircuitBreakerStateChangedAt time.Time

	PerEventType         map[string]int64
	PerEventTypeFailures map[string]int64
}

// Metrics accumulates counters with atomics and mirrors them into
// Prometheus collectors for external scraping.
type Metrics struct {
	startTime time.Time

	eventsProcessed     atomic.Int64
	eventsBroadcast     atomic.Int64
	eventsDelivered     atomic.Int64
	eventsFailed        atomic.Int64
	broadcastSucceeded  atomic.Int64
	broadcastFailed     atomic.Int64
	messagesSent        atomic.Int64
	messagesReceived    atomic.Int64
	requestsTimedOut    atomic.Int64
	circuitBreakerTrips atomic.Int64
	retryAttempts       atomic.Int64

	latencyMu    sync.Mutex
	latencyTotal time.Duration
	latencyCount int64

	minProcessingNanos atomic.Int64
	maxProcessingNanos atomic.Int64

	breakerMu         sync.Mutex
	breakerState      breaker.State
	breakerStateSince time.Time

	perTypeMu       sync.Mutex
	perType         map[string]*atomic.Int64
	perTypeFailures map[string]*atomic.Int64

	promEventsTotal   *prometheus.CounterVec
	promMessagesTotal *prometheus.CounterVec
	promLatency       prometheus.Histogram
	promBreakerTrips  prometheus.Counter
}

// New constructs a Metrics instance and its Prometheus collectors.
// Callers register the returned collectors with a prometheus.Registerer
// of their choosing (see cmd's fx wiring) and share the single instance
// across the messaging and event-service layers so the snapshot and the
// scraped view describe the same fabric.
func New() *Metrics {
	m := &Metrics{
		startTime:         time.Now(),
		breakerState:      breaker.StateClosed,
		breakerStateSince: time.Now(),
		perType:           make(map[string]*atomic.Int64),
		perTypeFailures:   make(map[string]*atomic.Int64),
		promEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conexus",
			Subsystem: "events",
			Name:      "total",
			Help:      "Cross-server events processed, partitioned by outcome.",
		}, []string{"outcome"}),
		promMessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "conexus",
			Subsystem: "messages",
			Name:      "total",
			Help:      "Envelope messages processed, partitioned by direction.",
		}, []string{"direction"}),
		promLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conexus",
			Subsystem: "events",
			Name:      "broadcast_latency_seconds",
			Help:      "Time to complete an event broadcast across local and network phases.",
			Buckets:   prometheus.DefBuckets,
		}),
		promBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conexus",
			Subsystem: "breaker",
			Name:      "trips_total",
			Help:      "Number of times the network circuit breaker has tripped open.",
		}),
	}
	m.minProcessingNanos.Store(math.MaxInt64)
	return m
}

// Collectors returns every Prometheus collector owned by m, for
// registration with a prometheus.Registerer.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.promEventsTotal, m.promMessagesTotal, m.promLatency, m.promBreakerTrips}
}

// RecordEventBroadcast records the outcome of one BroadcastEvent call:
// eventsProcessed always advances, success/failure and per-type
// counters split on outcome, and processing-time sum/min/max always
// incorporate latency regardless of outcome.
func (m *Metrics) RecordEventBroadcast(eventTypeName string, latency time.Duration, success bool) {
	m.eventsProcessed.Add(1)
	m.recordLatency(latency)
	m.updateProcessingExtremes(latency)

	if success {
		m.eventsBroadcast.Add(1)
		m.broadcastSucceeded.Add(1)
		m.promEventsTotal.WithLabelValues("broadcast").Inc()
		m.bumpPerType(eventTypeName)
		m.RecordEventDelivered()
		return
	}
	m.broadcastFailed.Add(1)
	m.bumpPerTypeFailure(eventTypeName)
	m.RecordEventFailed()
}

func (m *Metrics) RecordEventDelivered() {
	m.eventsDelivered.Add(1)
	m.promEventsTotal.WithLabelValues("delivered").Inc()
}

func (m *Metrics) RecordEventFailed() {
	m.eventsFailed.Add(1)
	m.promEventsTotal.WithLabelValues("failed").Inc()
}

// RecordEventTypeFailure increments the per-type failure count for
// eventTypeName, used for receive-side failures (unknown type,
// decode failure) attributed to a specific variant.
func (m *Metrics) RecordEventTypeFailure(eventTypeName string) {
	m.bumpPerTypeFailure(eventTypeName)
	m.RecordEventFailed()
}

// RecordMessageSent counts one envelope handed to the transport, from
// either SendToNode or Broadcast.
func (m *Metrics) RecordMessageSent() {
	m.messagesSent.Add(1)
	m.promMessagesTotal.WithLabelValues("sent").Inc()
}

// RecordMessageReceived counts one envelope accepted by onMessage
// after loopback filtering.
func (m *Metrics) RecordMessageReceived() {
	m.messagesReceived.Add(1)
	m.promMessagesTotal.WithLabelValues("received").Inc()
}

// RecordRequestTimeout counts a SendRequest call whose timer fired
// before a matching Response arrived.
func (m *Metrics) RecordRequestTimeout() {
	m.requestsTimedOut.Add(1)
}

func (m *Metrics) RecordCircuitBreakerTrip() {
	m.circuitBreakerTrips.Add(1)
	m.promBreakerTrips.Inc()
}

// RecordCircuitBreakerState records the breaker's current state,
// updating the recorded change time only when the state actually
// differs from the last one observed.
func (m *Metrics) RecordCircuitBreakerState(state breaker.State) {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()
	if state == m.breakerState {
		return
	}
	m.breakerState = state
	m.breakerStateSince = time.Now()
}

// RecordRetryAttempt increments the count of retry attempts made beyond
// an operation's first try, across every retried network broadcast.
func (m *Metrics) RecordRetryAttempt() {
	m.retryAttempts.Add(1)
}

func (m *Metrics) recordLatency(d time.Duration) {
	m.promLatency.Observe(d.Seconds())
	m.latencyMu.Lock()
	m.latencyTotal += d
	m.latencyCount++
	m.latencyMu.Unlock()
}

// updateProcessingExtremes keeps the running min/max processing nanos
// current under concurrent writers, mirroring a compare-and-swap
// update-and-get loop.
func (m *Metrics) updateProcessingExtremes(d time.Duration) {
	nanos := int64(d)
	for {
		cur := m.minProcessingNanos.Load()
		if nanos >= cur {
			break
		}
		if m.minProcessingNanos.CompareAndSwap(cur, nanos) {
			break
		}
	}
	for {
		cur := m.maxProcessingNanos.Load()
		if nanos <= cur {
			break
		}
		if m.maxProcessingNanos.CompareAndSwap(cur, nanos) {
			break
		}
	}
}

func (m *Metrics) bumpPerType(eventTypeName string) {
	if eventTypeName == "" {
		return
	}
	m.perTypeMu.Lock()
	counter, ok := m.perType[eventTypeName]
	if !ok {
		counter = &atomic.Int64{}
		m.perType[eventTypeName] = counter
	}
	m.perTypeMu.Unlock()
	counter.Add(1)
}

func (m *Metrics) bumpPerTypeFailure(eventTypeName string) {
	if eventTypeName == "" {
		return
	}
	m.perTypeMu.Lock()
	counter, ok := m.perTypeFailures[eventTypeName]
	if !ok {
		counter = &atomic.Int64{}
		m.perTypeFailures[eventTypeName] = counter
	}
	m.perTypeMu.Unlock()
	counter.Add(1)
}

// Snapshot returns an immutable copy of the current counters. A fresh
// Metrics, with no processing time recorded yet, reports
// MinProcessingTime == MaxProcessingTime == 0, never min > max.
func (m *Metrics) Snapshot() Snapshot {
	m.latencyMu.Lock()
	var avg time.Duration
	if m.latencyCount > 0 {
		avg = m.latencyTotal / time.Duration(m.latencyCount)
	}
	m.latencyMu.Unlock()

	minNanos := m.minProcessingNanos.Load()
	if minNanos == math.MaxInt64 {
		minNanos = 0
	}
	maxNanos := m.maxProcessingNanos.Load()

	m.perTypeMu.Lock()
	perType := make(map[string]int64, len(m.perType))
	for k, v := range m.perType {
		perType[k] = v.Load()
	}
	perTypeFailures := make(map[string]int64, len(m.perTypeFailures))
	for k, v := range m.perTypeFailures {
		perTypeFailures[k] = v.Load()
	}
	m.perTypeMu.Unlock()

	m.breakerMu.Lock()
	breakerState := m.breakerState
	breakerSince := m.breakerStateSince
	m.breakerMu.Unlock()

	processed := m.eventsProcessed.Load()
	succeeded := m.broadcastSucceeded.Load()
	var successRate float64
	if processed > 0 {
		successRate = float64(succeeded) / float64(processed) * 100.0
	}

	return Snapshot{
		StartTime:    m.startTime,
		SnapshotTime: time.Now(),

		EventsProcessed:   processed,
		EventsBroadcast:   m.eventsBroadcast.Load(),
		EventsDelivered:   m.eventsDelivered.Load(),
		EventsFailed:      m.eventsFailed.Load(),
		BroadcastFailures: m.broadcastFailed.Load(),

		MessagesSent:     m.messagesSent.Load(),
		MessagesReceived: m.messagesReceived.Load(),
		RequestsTimedOut: m.requestsTimedOut.Load(),

		CircuitBreakerTrips: m.circuitBreakerTrips.Load(),
		RetryAttempts:       m.retryAttempts.Load(),

		SuccessRatePercent:      successRate,
		AverageBroadcastLatency: avg,
		MinProcessingTime:       time.Duration(minNanos),
		MaxProcessingTime:       time.Duration(maxNanos),

		CircuitBreakerState:          breakerState.String(),
		CircuitBreakerStateChangedAt: breakerSince,

		PerEventType:         perType,
		PerEventTypeFailures: perTypeFailures,
	}
}

// LogCurrent emits the current snapshot at info level. Intended to be
// called on a periodic ticker by the owning service.
func (m *Metrics) LogCurrent(log *slog.Logger) {
	snap := m.Snapshot()
	log.Info("fabric metrics",
		"events_processed", snap.EventsProcessed,
		"events_broadcast", snap.EventsBroadcast,
		"events_delivered", snap.EventsDelivered,
		"events_failed", snap.EventsFailed,
		"success_rate_percent", snap.SuccessRatePercent,
		"messages_sent", snap.MessagesSent,
		"messages_received", snap.MessagesReceived,
		"requests_timed_out", snap.RequestsTimedOut,
		"circuit_breaker_trips", snap.CircuitBreakerTrips,
		"circuit_breaker_state", snap.CircuitBreakerState,
		"avg_broadcast_latency", snap.AverageBroadcastLatency,
		"min_processing_time", snap.MinProcessingTime,
		"max_processing_time", snap.MaxProcessingTime,
	)
}
