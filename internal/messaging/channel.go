package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/boredhf/conexus/internal/message"
	"github.com/boredhf/conexus/internal/transport"
)

// TypedChannel is an arbitrary application pub/sub channel scoped to a
// single expected message variant. Messages of other variants, and
// messages originating from this node, are silently dropped.
type TypedChannel struct {
	name            string
	expectedTypeTag string
	nodeID          string
	transport       transport.Transport
	codec           *message.Codec
	log             *slog.Logger

	unsub transport.Unsubscribe
}

// Publish serializes msg and publishes it on the channel. msg must
// match the channel's expected variant.
func (c *TypedChannel) Publish(ctx context.Context, msg message.Message) error {
	if msg.TypeTag() != c.expectedTypeTag {
		return fmt.Errorf("messaging: channel %s expects %s, got %s", c.name, c.expectedTypeTag, msg.TypeTag())
	}
	payload, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	return c.transport.Publish(ctx, c.name, payload)
}

// Subscribe installs handler for every future message on the channel
// matching the expected variant, excluding this node's own publications.
func (c *TypedChannel) Subscribe(ctx context.Context, handler HandlerFunc) error {
	unsub, err := c.transport.Subscribe(ctx, c.name, func(ctx context.Context, payload []byte) error {
		msg, err := c.codec.Decode(payload)
		if err != nil {
			c.log.Warn("dropping undecodable channel message", "channel", c.name, "error", err)
			return nil
		}
		if msg.SourceNodeID() == c.nodeID {
			return nil
		}
		if msg.TypeTag() != c.expectedTypeTag {
			return nil
		}
		handler(ctx, msg)
		return nil
	})
	if err != nil {
		return err
	}
	c.unsub = unsub
	return nil
}

// Unsubscribe removes this channel's handler, if any.
func (c *TypedChannel) Unsubscribe() error {
	if c.unsub == nil {
		return nil
	}
	return c.unsub()
}
