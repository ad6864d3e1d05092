// Package events defines the NetworkEvent contract and the built-in event
// variants shipped with the fabric.
package events

import (
	"time"

	"github.com/boredhf/conexus/internal/eventregistry"
)

// NetworkEvent is a polymorphic value carried inside a NetworkEventMessage.
// SourceNodeID is the originator of the domain event — distinct from the
// envelope's publisher if the event is ever republished.
type NetworkEvent interface {
	EventSourceNodeID() string
	EventTimestamp() time.Time
	EventMetadata() map[string]string
}

// Status is the health/lifecycle state a node reports to its peers.
type Status string

const (
	StatusOnline      Status = "ONLINE"
	StatusOffline     Status = "OFFLINE"
	StatusMaintenance Status = "MAINTENANCE"
	StatusDegraded    Status = "DEGRADED"
)

// StatusEventTypeName is the eventTypeName this variant is registered
// under in the EventRegistry.
const StatusEventTypeName = "conexus.ServerStatusEvent"

// StatusEvent announces a node's lifecycle state to the rest of the fleet.
// Recovered from original_source's ServerStatusEvent; it is the event
// variant exercised by the end-to-end scenarios in spec §8.
type StatusEvent struct {
	SourceNodeID string            `json:"sourceNodeId"`
	At           time.Time         `json:"timestamp"`
	Status       Status            `json:"status"`
	Message      string            `json:"message"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

var _ NetworkEvent = (*StatusEvent)(nil)

// NewStatusEvent constructs a StatusEvent originating at sourceNodeID.
func NewStatusEvent(sourceNodeID string, status Status, msg string) *StatusEvent {
	return &StatusEvent{
		SourceNodeID: sourceNodeID,
		At:           time.Now().UTC(),
		Status:       status,
		Message:      msg,
	}
}

func (e *StatusEvent) EventSourceNodeID() string        { return e.SourceNodeID }
func (e *StatusEvent) EventTimestamp() time.Time        { return e.At }
func (e *StatusEvent) EventMetadata() map[string]string { return e.Metadata }

// RegisterBuiltins registers every built-in NetworkEvent variant against
// registry. Called once by eventservice.New.
func RegisterBuiltins(registry *eventregistry.Registry) {
	registry.Register(StatusEventTypeName, func() any { return &StatusEvent{} }, nil)
}
