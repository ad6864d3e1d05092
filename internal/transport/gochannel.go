package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	wmmessage "github.com/ThreeDotsLabs/watermill/message"
)

// gochannelConnector backs a Transport with an in-process pub/sub,
// used for single-process tests and for local development without a
// broker.
type gochannelConnector struct {
	log *slog.Logger
	gc  *gochannel.GoChannel
}

func (c *gochannelConnector) connect(ctx context.Context) (wmmessage.Publisher, wmmessage.Subscriber, error) {
	c.gc = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: false,
	}, watermill.NewStdLogger(false, false))
	return c.gc, c.gc, nil
}

func (c *gochannelConnector) disconnect() error {
	if c.gc == nil {
		return nil
	}
	return c.gc.Close()
}

// NewInProcessTransport constructs a Transport backed by an in-process
// pub/sub. KV entries default to defaultTTL and the store holds up to
// kvCapacity keys.
func NewInProcessTransport(log *slog.Logger, kvCapacity int, defaultTTL time.Duration) Transport {
	if log == nil {
		log = slog.Default()
	}
	kv := NewKVStore(kvCapacity, defaultTTL)
	return newWatermillTransport(log, kv, &gochannelConnector{log: log})
}
