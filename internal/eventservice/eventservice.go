// Package eventservice implements the cross-server event broadcasting
// core: typed-event fan-out to local listeners, network broadcast
// through the messaging fabric guarded by a circuit breaker and retry
// manager, loop prevention, graceful degradation, and metrics.
package eventservice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/boredhf/conexus/internal/apperrors"
	"github.com/boredhf/conexus/internal/breaker"
	"github.com/boredhf/conexus/internal/collaborators"
	"github.com/boredhf/conexus/internal/config"
	"github.com/boredhf/conexus/internal/eventregistry"
	"github.com/boredhf/conexus/internal/events"
	"github.com/boredhf/conexus/internal/message"
	"github.com/boredhf/conexus/internal/messaging"
	"github.com/boredhf/conexus/internal/metrics"
	"github.com/boredhf/conexus/internal/retry"
)

// lifecycle states for the service's Created -> Initialized -> Shutdown
// machine.
const (
	stateCreated int32 = iota
	stateInitialized
	stateShutdown
)

const cellBufferSize = 64

// Service is the cross-server event fabric: it owns the event
// registry, circuit breaker, and retry manager exclusively; the metrics
// instance may be shared with the messaging service, and the messaging
// service is a shared collaborator it never closes.
type Service struct {
	nodeID    string
	cfg       config.Config
	messaging *messaging.Service
	registry  *eventregistry.Registry
	breaker   *breaker.CircuitBreaker
	retryMgr  *retry.Manager
	metrics   *metrics.Metrics
	sem       *semaphore.Weighted
	log       *slog.Logger

	playerData collaborators.PlayerDataService
	moderation collaborators.ModerationService

	cellsMu sync.Mutex
	cells   map[string]*cell

	state atomic.Int32
}

// New constructs a Service bound to nodeID. m is the shared metrics
// instance also handed to the messaging service; passing nil gives the
// Service its own private instance, useful for tests that don't care
// about a fabric-wide view. Initialize must be called before
// BroadcastEvent.
func New(nodeID string, cfg config.Config, messagingSvc *messaging.Service, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "eventservice", "node", nodeID)
	if m == nil {
		m = metrics.New()
	}

	svc := &Service{
		nodeID:    nodeID,
		cfg:       cfg,
		messaging: messagingSvc,
		registry:  eventregistry.New(),
		breaker: breaker.New(breaker.Config{
			FailureThreshold: int64(cfg.CircuitBreakerFailureThreshold),
			SuccessThreshold: 1,
			OpenTimeout:      cfg.CircuitBreakerTimeout,
		}),
		metrics: m,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentEvents)),
		log:     log,
		cells:   make(map[string]*cell),
	}
	svc.retryMgr = retry.NewManager(retry.Config{
		MaxAttempts: cfg.MaxRetryAttempts,
		BaseDelay:   cfg.RetryDelay,
		Multiplier:  cfg.RetryBackoffMultiplier,
		MaxDelay:    cfg.MaxRetryDelay(),
		OnRetry: func(name string, attempt int) {
			svc.metrics.RecordRetryAttempt()
		},
	}, log)
	events.RegisterBuiltins(svc.registry)
	return svc
}

// Initialize installs the NetworkEventMessage handler on the messaging
// service. Calling it a second time is a no-op.
func (s *Service) Initialize(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateCreated, stateInitialized) {
		return nil
	}
	s.messaging.RegisterHandler(message.TypeNetworkEventMessage, s.onNetworkEventMessage)
	s.log.Info("event service initialized")
	return nil
}

// Shutdown unregisters the inbound handler, drains the retry manager
// with its bounded grace period, and stops every listener cell.
// Calling it before Initialize, or a second time, is a no-op.
func (s *Service) Shutdown(ctx context.Context) error {
	if !s.state.CompareAndSwap(stateInitialized, stateShutdown) {
		return nil
	}
	s.messaging.UnregisterHandler(message.TypeNetworkEventMessage)

	err := s.retryMgr.Shutdown(ctx)

	s.cellsMu.Lock()
	for _, c := range s.cells {
		c.stop()
	}
	s.cells = make(map[string]*cell)
	s.cellsMu.Unlock()

	s.log.Info("event service shut down")
	return err
}

// WithPlayerDataService attaches a host-supplied PlayerDataService
// collaborator. The fabric never calls it: it is a seam a host wiring
// its own DataUpdate routing on top of this Service can reach without
// widening New's signature.
func (s *Service) WithPlayerDataService(svc collaborators.PlayerDataService) *Service {
	s.playerData = svc
	return s
}

// PlayerDataService returns the attached collaborator, or nil if none
// was set.
func (s *Service) PlayerDataService() collaborators.PlayerDataService { return s.playerData }

// WithModerationService attaches a host-supplied ModerationService
// collaborator, mirroring WithPlayerDataService.
func (s *Service) WithModerationService(svc collaborators.ModerationService) *Service {
	s.moderation = svc
	return s
}

// ModerationService returns the attached collaborator, or nil if none
// was set.
func (s *Service) ModerationService() collaborators.ModerationService { return s.moderation }

// RegisterEventType registers a custom NetworkEvent variant against
// the service's registry.
func (s *Service) RegisterEventType(eventTypeName string, factory func() any, decoder eventregistry.Decoder) {
	s.registry.Register(eventTypeName, factory, decoder)
}

// RegisterEventListener subscribes listener to every event broadcast
// or received under eventTypeName. Returns an id for Unregister.
func (s *Service) RegisterEventListener(eventTypeName string, listener Listener) uint64 {
	return s.cellFor(eventTypeName).register(listener)
}

// UnregisterEventListener removes the listener identified by id from
// eventTypeName.
func (s *Service) UnregisterEventListener(eventTypeName string, id uint64) {
	s.cellsMu.Lock()
	c, ok := s.cells[eventTypeName]
	s.cellsMu.Unlock()
	if ok {
		c.unregister(id)
	}
}

// ListenerCount returns the number of listeners registered for
// eventTypeName.
func (s *Service) ListenerCount(eventTypeName string) int {
	s.cellsMu.Lock()
	c, ok := s.cells[eventTypeName]
	s.cellsMu.Unlock()
	if !ok {
		return 0
	}
	return c.count()
}

// TotalListenerCount returns the number of listeners registered across
// every event type.
func (s *Service) TotalListenerCount() int {
	s.cellsMu.Lock()
	defer s.cellsMu.Unlock()
	total := 0
	for _, c := range s.cells {
		total += c.count()
	}
	return total
}

// BreakerState returns the current circuit breaker state.
func (s *Service) BreakerState() breaker.State { return s.breaker.State() }

// SnapshotMetrics returns an immutable view of the service's counters.
func (s *Service) SnapshotMetrics() metrics.Snapshot { return s.metrics.Snapshot() }

// Metrics returns the service's shared metrics instance, letting a
// caller register its Prometheus collectors independently of
// construction order.
func (s *Service) Metrics() *metrics.Metrics { return s.metrics }

func (s *Service) cellFor(eventTypeName string) *cell {
	s.cellsMu.Lock()
	defer s.cellsMu.Unlock()
	c, ok := s.cells[eventTypeName]
	if !ok {
		c = newCell(eventTypeName, cellBufferSize, s.log)
		s.cells[eventTypeName] = c
	}
	return c
}

// BroadcastEvent runs the local and network phases for event, tagged
// as eventTypeName, at the given priority, and blocks until both
// phases have settled. Callers wanting fire-and-forget semantics
// should invoke it from their own goroutine.
func (s *Service) BroadcastEvent(ctx context.Context, eventTypeName string, event events.NetworkEvent, priority message.Priority) error {
	if s.state.Load() != stateInitialized {
		return apperrors.ErrNotInitialized
	}

	if !s.sem.TryAcquire(1) {
		return apperrors.ErrOverloaded
	}
	defer s.sem.Release(1)

	start := time.Now()
	enrichedCtx := withEventContext(ctx, priority, event.EventSourceNodeID())
	eg, egCtx := errgroup.WithContext(enrichedCtx)

	if s.cfg.EnableLocalProcessing {
		// runLocalPhase only enqueues the job to the event type's cell
		// and returns; the combined future below settles once the job
		// is queued, not once every listener has run. A saturated
		// mailbox drops the job outright (cell.push). This trades the
		// Java reference's local-future-waits-for-listeners semantics
		// for a bounded work queue that never lets a slow listener
		// stall BroadcastEvent's caller.
		eg.Go(func() error {
			s.runLocalPhase(egCtx, eventTypeName, event)
			return nil
		})
	}

	if s.cfg.EnableCrossNodeBroadcast {
		eg.Go(func() error {
			return s.runNetworkPhase(egCtx, eventTypeName, event, priority)
		})
	}

	err := eg.Wait()
	elapsed := time.Since(start)
	s.metrics.RecordEventBroadcast(eventTypeName, elapsed, err == nil)
	return err
}

// runLocalPhase queues event on eventTypeName's cell, whose goroutine
// then invokes every listener registered for that type; it does not
// wait for them. Listener panics are isolated by the cell; local failures never
// surface to the caller or prevent the network phase. event is
// untyped so both a freshly broadcast events.NetworkEvent and a value
// reconstructed by EventRegistry.DecodeEvent (which may be a bespoke
// type for custom decoders) can flow through the same path.
func (s *Service) runLocalPhase(ctx context.Context, eventTypeName string, event any) {
	s.cellsMu.Lock()
	c, ok := s.cells[eventTypeName]
	s.cellsMu.Unlock()
	if !ok {
		return
	}
	c.push(cellJob{ctx: ctx, event: event})
}

// runNetworkPhase wraps event in a NetworkEventMessage and broadcasts
// it through the messaging service, gated by the circuit breaker and
// wrapped in the retry manager's backoff schedule.
func (s *Service) runNetworkPhase(ctx context.Context, eventTypeName string, event events.NetworkEvent, priority message.Priority) error {
	s.metrics.RecordCircuitBreakerState(s.breaker.State())

	if !s.breaker.AllowRequest() {
		if s.cfg.EnableGracefulDegradation {
			return nil
		}
		return apperrors.ErrCircuitBreakerOpen
	}

	payload, err := s.registry.EncodeEvent(event)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrSerialization, err)
	}

	wrapper := message.NewNetworkEventMessage(s.nodeID, event.EventSourceNodeID(), eventTypeName, payload, priority)

	netCtx, cancel := context.WithTimeout(ctx, s.cfg.NetworkBroadcastTimeout)
	defer cancel()

	prevState := s.breaker.State()
	_, err = retry.ExecuteWithRetry(netCtx, s.retryMgr, "broadcast:"+eventTypeName, func(ctx context.Context) (struct{}, error) {
		if err := s.messaging.Broadcast(ctx, wrapper); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	})

	if err != nil {
		s.breaker.RecordFailure()
		newState := s.breaker.State()
		s.metrics.RecordCircuitBreakerState(newState)
		if prevState != breaker.StateOpen && newState == breaker.StateOpen {
			s.metrics.RecordCircuitBreakerTrip()
		}
		return err
	}
	s.breaker.RecordSuccess()
	s.metrics.RecordCircuitBreakerState(s.breaker.State())
	return nil
}

// onNetworkEventMessage is installed on the messaging service to
// receive every inbound NetworkEventMessage.
func (s *Service) onNetworkEventMessage(ctx context.Context, msg message.Message) {
	wrapper, ok := msg.(*message.NetworkEventMessage)
	if !ok {
		return
	}

	if wrapper.OriginalNodeID == s.nodeID {
		return
	}

	event, err := s.registry.DecodeEvent(wrapper.EventTypeName, wrapper.EventPayload)
	if err != nil {
		s.log.Warn("dropping undecodable network event", "type", wrapper.EventTypeName, "error", err)
		s.metrics.RecordEventTypeFailure(wrapper.EventTypeName)
		return
	}

	s.metrics.RecordEventDelivered()
	enrichedCtx := withEventContext(ctx, wrapper.Priority, wrapper.OriginalNodeID)
	s.runLocalPhase(enrichedCtx, wrapper.EventTypeName, event)
}
