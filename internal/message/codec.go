package message

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSerialization is returned when a Message value cannot be encoded.
var ErrSerialization = errors.New("message: serialization failed")

// ErrDeserialization is returned when bytes cannot be decoded into a
// known Message variant.
var ErrDeserialization = errors.New("message: deserialization failed")

type discriminator struct {
	Class string `json:"@class"`
}

// Codec serializes and deserializes envelope values to and from the
// self-describing JSON wire format. Unknown fields on decode are
// tolerated by encoding/json's default unmarshal behavior; unknown type
// discriminators fail with ErrDeserialization.
type Codec struct{}

// NewCodec constructs a Codec. It holds no state; a value receiver would
// do just as well, but a constructor keeps call sites consistent with the
// rest of the fabric's components.
func NewCodec() *Codec { return &Codec{} }

// Encode serializes a Message to its JSON wire form.
func (c *Codec) Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return data, nil
}

// Decode picks the most-specific Message variant from the embedded
// "@class" discriminator and unmarshals into it.
func (c *Codec) Decode(data []byte) (Message, error) {
	var d discriminator
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}

	var target Message
	switch d.Class {
	case TypeSimpleText:
		target = &SimpleText{}
	case TypeRequest:
		target = &Request{}
	case TypeResponse:
		target = &Response{}
	case TypeNetworkEventMessage:
		target = &NetworkEventMessage{}
	case TypeDataUpdate:
		target = &DataUpdate{}
	default:
		return nil, fmt.Errorf("%w: unknown type discriminator %q", ErrDeserialization, d.Class)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeserialization, err)
	}
	return target, nil
}
