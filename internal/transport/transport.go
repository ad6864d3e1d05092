// Package transport abstracts the pub/sub and key-value substrate the
// messaging fabric runs on, so the messaging and event services never
// depend on watermill (or any other broker client) directly.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by operations attempted before Connect or
// after Disconnect.
var ErrNotConnected = errors.New("transport: not connected")

// ErrClosed reports use of a subscription that has already been closed.
// No transport in this package returns it; a handler whose subscription
// is cancelled simply stops receiving messages.
var ErrClosed = errors.New("transport: subscription closed")

// Handler processes one message's raw payload. Returning an error nacks
// the underlying broker message where the backend supports redelivery.
type Handler func(ctx context.Context, payload []byte) error

// Unsubscribe stops a subscription. Calling it more than once is safe.
type Unsubscribe func() error

// Transport is the pub/sub + KV surface the fabric is built on. A
// concrete implementation adapts a specific broker (in-process channels
// for tests, AMQP for production) to this contract.
type Transport interface {
	// Connect establishes the underlying broker connection. Calling
	// Connect while already connected is a no-op.
	Connect(ctx context.Context) error
	// Disconnect tears down the underlying connection and every open
	// subscription.
	Disconnect(ctx context.Context) error
	// IsConnected reports the current connection state.
	IsConnected() bool

	// Publish sends payload to channel. Returns ErrNotConnected if
	// called before Connect.
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe registers handler against channel. Delivery order
	// across subscribers on the same channel is not guaranteed.
	Subscribe(ctx context.Context, channel string, handler Handler) (Unsubscribe, error)

	KVStore
}

// KVStore is the ephemeral key-value store exposed alongside pub/sub.
// The messaging layer keeps its request correlation table in memory and
// does not use it.
type KVStore interface {
	Store(key, value string) error
	StoreWithTTL(key, value string, ttl time.Duration) error
	Retrieve(key string) (string, bool, error)
	Delete(key string) error
	Exists(key string) (bool, error)
}
