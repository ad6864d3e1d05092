package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
)

// watermillTransport adapts a watermill Publisher/Subscriber pair to
// the Transport contract. connector owns bringing the underlying
// client up and down; the gochannel and AMQP constructors each supply
// their own.
type watermillTransport struct {
	KVStore

	log       *slog.Logger
	connector connector

	mu        sync.Mutex
	connected bool
	publisher wmmessage.Publisher
	subscriber wmmessage.Subscriber

	subsMu sync.Mutex
	subs   map[string][]context.CancelFunc
}

// connector builds and tears down the watermill client pair. Kept
// separate from watermillTransport so gochannel (in-process) and AMQP
// (networked) backends share every bit of dispatch logic above the
// connection lifecycle.
type connector interface {
	connect(ctx context.Context) (wmmessage.Publisher, wmmessage.Subscriber, error)
	disconnect() error
}

func newWatermillTransport(log *slog.Logger, kv KVStore, c connector) *watermillTransport {
	if log == nil {
		log = slog.Default()
	}
	return &watermillTransport{
		KVStore:   kv,
		log:       log,
		connector: c,
		subs:      make(map[string][]context.CancelFunc),
	}
}

func (t *watermillTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connected {
		return nil
	}

	pub, sub, err := t.connector.connect(ctx)
	if err != nil {
		return fmt.Errorf("transport: connect: %w", err)
	}
	t.publisher = pub
	t.subscriber = sub
	t.connected = true
	t.log.Info("transport connected")
	return nil
}

func (t *watermillTransport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil
	}

	t.subsMu.Lock()
	for channel, cancels := range t.subs {
		for _, cancel := range cancels {
			cancel()
		}
		delete(t.subs, channel)
	}
	t.subsMu.Unlock()

	err := t.connector.disconnect()
	t.connected = false
	t.publisher = nil
	t.subscriber = nil
	t.log.Info("transport disconnected")
	return err
}

func (t *watermillTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *watermillTransport) Publish(ctx context.Context, channel string, payload []byte) error {
	t.mu.Lock()
	pub := t.publisher
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}

	msg := wmmessage.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	if err := pub.Publish(channel, msg); err != nil {
		return fmt.Errorf("transport: publish to %s: %w", channel, err)
	}
	return nil
}

func (t *watermillTransport) Subscribe(ctx context.Context, channel string, handler Handler) (Unsubscribe, error) {
	t.mu.Lock()
	sub := t.subscriber
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := sub.Subscribe(subCtx, channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transport: subscribe to %s: %w", channel, err)
	}

	t.subsMu.Lock()
	t.subs[channel] = append(t.subs[channel], cancel)
	t.subsMu.Unlock()

	go func() {
		for msg := range messages {
			if err := handler(msg.Context(), msg.Payload); err != nil {
				t.log.Warn("transport handler failed, nacking", "channel", channel, "error", err)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()

	once := sync.Once{}
	return func() error {
		once.Do(cancel)
		return nil
	}, nil
}
