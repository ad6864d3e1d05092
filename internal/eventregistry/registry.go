// Package eventregistry maps a NetworkEvent's type name to the concrete
// Go type used to decode it, with an optional custom decoder fallback for
// payloads that don't round-trip through JSON.
package eventregistry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownEventType is returned when decodeEvent is asked to decode a
// type name with no registered entry and the payload is not self-describing.
var ErrUnknownEventType = errors.New("eventregistry: unknown event type")

// Decoder decodes a raw (non-JSON) payload into a NetworkEvent value.
// Registered as a fallback path alongside the primary JSON codec.
type Decoder func(payload string) (any, error)

// entry pairs a registered type with an optional fallback decoder. factory
// produces a fresh zero value of the concrete variant for json.Unmarshal
// to populate; NetworkEvent implementations are plain structs, so a
// pointer to a new zero value is always addressable.
type entry struct {
	factory func() any
	decoder Decoder
}

// Registry is a concurrency-safe eventTypeName -> variant mapping. Exactly
// one entry exists per eventTypeName; a later Register call for the same
// name replaces the earlier one.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// New constructs an empty Registry. Built-in variants are registered by
// their owning packages (see internal/events) against an instance of this
// type, not hardcoded here, so the registry stays injectable per spec's
// resolved open question on avoiding a process-wide registry.
func New() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register associates eventTypeName with a zero-value factory for JSON
// decoding and an optional custom decoder used when the payload isn't
// JSON or JSON decoding fails.
func (r *Registry) Register(eventTypeName string, factory func() any, decoder Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[eventTypeName] = entry{factory: factory, decoder: decoder}
}

// IsRegistered reports whether eventTypeName has an entry.
func (r *Registry) IsRegistered(eventTypeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[eventTypeName]
	return ok
}

// EventClass returns the registered factory's zero value type as a
// freshly constructed instance, or nil if unregistered.
func (r *Registry) EventClass(eventTypeName string) any {
	r.mu.RLock()
	e, ok := r.entries[eventTypeName]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	return e.factory()
}

// RegisteredTypeNames returns every registered eventTypeName.
func (r *Registry) RegisteredTypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// EncodeEvent serializes event via JSON. If JSON encoding fails, it falls
// back to the event's textual rendering (fmt.Stringer, if implemented,
// else fmt's default verb).
func (r *Registry) EncodeEvent(event any) (string, error) {
	data, err := json.Marshal(event)
	if err == nil {
		return string(data), nil
	}

	if stringer, ok := event.(fmt.Stringer); ok {
		if s := stringer.String(); strings.TrimSpace(s) != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("eventregistry: encode failed and no textual fallback available: %w", err)
}

// DecodeEvent reconstructs the event named eventTypeName from payload.
// If payload looks like a JSON object, it is decoded into the registered
// variant first; on failure (or if it doesn't look like JSON), the
// registered custom decoder is used if present.
func (r *Registry) DecodeEvent(eventTypeName, payload string) (any, error) {
	r.mu.RLock()
	e, ok := r.entries[eventTypeName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventTypeName)
	}

	trimmed := strings.TrimSpace(payload)
	looksLikeJSON := strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")

	if looksLikeJSON {
		target := e.factory()
		if err := json.Unmarshal([]byte(payload), target); err == nil {
			return target, nil
		} else if e.decoder == nil {
			return nil, fmt.Errorf("eventregistry: decode %s failed and no custom decoder registered: %w", eventTypeName, err)
		}
	}

	if e.decoder == nil {
		return nil, fmt.Errorf("eventregistry: payload for %s is not JSON and no custom decoder registered", eventTypeName)
	}
	return e.decoder(payload)
}
