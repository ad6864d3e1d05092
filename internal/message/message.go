// Package message defines the envelope types exchanged between nodes and
// the codec that serializes them to the wire format described in the
// fabric's external interfaces.
package message

import (
	"time"

	"github.com/google/uuid"
)

// Message is the base envelope carried on every channel. messageId and
// timestamp are set once at construction and never mutated; sourceNodeId
// equals the publisher's node id.
type Message interface {
	MessageID() uuid.UUID
	Timestamp() time.Time
	SourceNodeID() string
	TypeTag() string
}

// Base implements the identity fields shared by every envelope variant.
// Embed it in concrete variants.
type Base struct {
	ID     uuid.UUID `json:"messageId"`
	At     time.Time `json:"timestamp"`
	Source string    `json:"sourceServerId"`
	Class  string    `json:"@class"`
}

// NewBase constructs the immutable identity fields for a new envelope.
func NewBase(typeTag, sourceNodeID string) Base {
	return Base{
		ID:     uuid.New(),
		At:     time.Now().UTC(),
		Source: sourceNodeID,
		Class:  typeTag,
	}
}

func (b Base) MessageID() uuid.UUID { return b.ID }
func (b Base) Timestamp() time.Time { return b.At }
func (b Base) SourceNodeID() string { return b.Source }
func (b Base) TypeTag() string      { return b.Class }
