// Package messaging implements typed dispatch, direct/broadcast
// delivery, and request/response correlation on top of a Transport.
package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boredhf/conexus/internal/apperrors"
	"github.com/boredhf/conexus/internal/message"
	"github.com/boredhf/conexus/internal/metrics"
	"github.com/boredhf/conexus/internal/transport"
)

const (
	broadcastChannel   = "broadcast"
	directChannelPrefix = "direct:"
)

func directChannel(nodeID string) string { return directChannelPrefix + nodeID }

// HandlerFunc processes one decoded envelope. typeTag == "" registered
// against RegisterHandler acts as a catch-all, matched only when no
// exact-tag handler is registered — the Go stand-in for "declared
// variant is a supertype of the decoded variant".
type HandlerFunc func(ctx context.Context, msg message.Message)

// Service is the messaging fabric: typed dispatch, direct send,
// broadcast, and request/response with timeouts, all layered on a
// Transport.
type Service struct {
	nodeID    string
	transport transport.Transport
	codec     *message.Codec
	metrics   *metrics.Metrics
	log       *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]HandlerFunc

	pending sync.Map // uuid.UUID -> *pendingWaiter

	channelsMu sync.Mutex
	channels   map[string]*TypedChannel

	mu          sync.Mutex
	initialized bool
	unsubDirect transport.Unsubscribe
	unsubBcast  transport.Unsubscribe
}

var waiterPool = sync.Pool{New: func() any { return &pendingWaiter{} }}

type pendingWaiter struct {
	ch chan message.Message
}

func (w *pendingWaiter) reset() {
	*w = pendingWaiter{ch: make(chan message.Message, 1)}
}

// New constructs a messaging Service bound to nodeID. m is the shared
// metrics instance also handed to the event service; passing nil gives
// the Service its own private instance. Initialize must be called
// before sending or receiving.
func New(nodeID string, t transport.Transport, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &Service{
		nodeID:    nodeID,
		transport: t,
		codec:     message.NewCodec(),
		metrics:   m,
		log:       log.With("component", "messaging", "node", nodeID),
		handlers:  make(map[string]HandlerFunc),
		channels:  make(map[string]*TypedChannel),
	}
}

// Initialize subscribes to this node's direct channel and the shared
// broadcast channel. Calling it a second time is a no-op.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	unsubDirect, err := s.transport.Subscribe(ctx, directChannel(s.nodeID), s.onMessage)
	if err != nil {
		return fmt.Errorf("messaging: subscribe direct channel: %w", err)
	}
	unsubBcast, err := s.transport.Subscribe(ctx, broadcastChannel, s.onMessage)
	if err != nil {
		unsubDirect()
		return fmt.Errorf("messaging: subscribe broadcast channel: %w", err)
	}

	s.unsubDirect = unsubDirect
	s.unsubBcast = unsubBcast
	s.initialized = true
	return nil
}

// Shutdown unsubscribes from both fabric channels. Calling it a second
// time, or before Initialize, is a no-op.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return nil
	}
	if s.unsubDirect != nil {
		s.unsubDirect()
	}
	if s.unsubBcast != nil {
		s.unsubBcast()
	}
	s.initialized = false
	return nil
}

func (s *Service) onMessage(ctx context.Context, payload []byte) error {
	msg, err := s.codec.Decode(payload)
	if err != nil {
		s.log.Warn("dropping undecodable message", "error", err)
		return nil
	}

	if msg.SourceNodeID() == s.nodeID {
		return nil
	}
	s.metrics.RecordMessageReceived()

	if resp, ok := msg.(*message.Response); ok {
		if v, found := s.pending.LoadAndDelete(resp.CorrelationID); found {
			waiter := v.(*pendingWaiter)
			waiter.ch <- msg
			return nil
		}
	}

	s.dispatch(ctx, msg)
	return nil
}

func (s *Service) dispatch(ctx context.Context, msg message.Message) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[msg.TypeTag()]
	if !ok {
		handler, ok = s.handlers[""]
	}
	s.handlersMu.RUnlock()

	if !ok {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("handler panicked", "type", msg.TypeTag(), "panic", r)
		}
	}()
	handler(ctx, msg)
}

// RegisterHandler installs handler for typeTag, replacing any prior
// registration for that tag atomically. typeTag == "" registers a
// catch-all invoked when no exact match exists.
func (s *Service) RegisterHandler(typeTag string, handler HandlerFunc) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[typeTag] = handler
}

// UnregisterHandler removes the handler registered for typeTag.
func (s *Service) UnregisterHandler(typeTag string) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	delete(s.handlers, typeTag)
}

// SendToNode publishes msg to targetNodeID's direct channel.
func (s *Service) SendToNode(ctx context.Context, targetNodeID string, msg message.Message) error {
	payload, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.transport.Publish(ctx, directChannel(targetNodeID), payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransportUnavailable, err)
	}
	s.metrics.RecordMessageSent()
	return nil
}

// Broadcast publishes msg to the shared broadcast channel.
func (s *Service) Broadcast(ctx context.Context, msg message.Message) error {
	payload, err := s.codec.Encode(msg)
	if err != nil {
		return err
	}
	if err := s.transport.Publish(ctx, broadcastChannel, payload); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrTransportUnavailable, err)
	}
	s.metrics.RecordMessageSent()
	return nil
}

// SendRequest sends req to targetNodeID and blocks until a matching
// Response arrives, ctx is cancelled, or timeout elapses.
func (s *Service) SendRequest(ctx context.Context, targetNodeID string, req *message.Request, timeout time.Duration) (*message.Response, error) {
	waiter := waiterPool.Get().(*pendingWaiter)
	waiter.reset()
	correlationID := req.MessageID()
	s.pending.Store(correlationID, waiter)
	defer func() {
		s.pending.Delete(correlationID)
		waiterPool.Put(waiter)
	}()

	if err := s.SendToNode(ctx, targetNodeID, req); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-waiter.ch:
		response, ok := resp.(*message.Response)
		if !ok {
			return nil, fmt.Errorf("%w: expected Response, got %s", apperrors.ErrProtocolMismatch, resp.TypeTag())
		}
		return response, nil
	case <-timer.C:
		s.metrics.RecordRequestTimeout()
		return nil, fmt.Errorf("%w: request %s to %s", apperrors.ErrTimeout, correlationID, targetNodeID)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", apperrors.ErrCancelled, ctx.Err())
	}
}

// CreateChannel registers a typed pub/sub channel scoped to a single
// expected message variant. Subsequent Publish/Subscribe calls on the
// returned TypedChannel filter by that variant and suppress loopback.
func (s *Service) CreateChannel(name, expectedTypeTag string) *TypedChannel {
	s.channelsMu.Lock()
	defer s.channelsMu.Unlock()
	if ch, ok := s.channels[name]; ok {
		return ch
	}
	ch := &TypedChannel{
		name:            name,
		expectedTypeTag: expectedTypeTag,
		nodeID:          s.nodeID,
		transport:       s.transport,
		codec:           s.codec,
		log:             s.log,
	}
	s.channels[name] = ch
	return ch
}
