// Package apperrors collects the sentinel errors shared across the
// messaging and event-service layers, so callers can classify failures
// with errors.Is regardless of which component surfaced them.
package apperrors

import "errors"

var (
	// ErrTransportUnavailable means the broker connection is down or
	// failing to publish.
	ErrTransportUnavailable = errors.New("conexus: transport unavailable")
	// ErrSerialization means the codec could not encode a value.
	ErrSerialization = errors.New("conexus: serialization error")
	// ErrDeserialization means the codec could not decode a payload.
	ErrDeserialization = errors.New("conexus: deserialization error")
	// ErrUnknownEventType means no registry entry exists for a received
	// NetworkEventMessage's eventTypeName.
	ErrUnknownEventType = errors.New("conexus: unknown event type")
	// ErrCircuitBreakerOpen means the network phase was refused because
	// the breaker is open and graceful degradation is disabled.
	ErrCircuitBreakerOpen = errors.New("conexus: circuit breaker open")
	// ErrTimeout means a request/response exchange did not complete in
	// time.
	ErrTimeout = errors.New("conexus: timeout")
	// ErrProtocolMismatch means a response's concrete type did not
	// match the expected variant.
	ErrProtocolMismatch = errors.New("conexus: protocol mismatch")
	// ErrCancelled means an operation or outstanding retry was
	// cancelled by shutdown or the caller.
	ErrCancelled = errors.New("conexus: cancelled")
	// ErrNotInitialized means an operation was invoked before
	// Initialize completed.
	ErrNotInitialized = errors.New("conexus: not initialized")
	// ErrOverloaded means the concurrent-event limit was exceeded.
	ErrOverloaded = errors.New("conexus: overloaded")
)
