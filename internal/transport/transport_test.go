package transport_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boredhf/conexus/internal/transport"
)

func TestInProcessTransportPublishSubscribe(t *testing.T) {
	tr := transport.NewInProcessTransport(nil, 64, time.Minute)
	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))
	defer tr.Disconnect(ctx)

	var mu sync.Mutex
	var received []byte
	done := make(chan struct{})

	unsub, err := tr.Subscribe(ctx, "chan-a", func(ctx context.Context, payload []byte) error {
		mu.Lock()
		received = payload
		mu.Unlock()
		close(done)
		return nil
	})
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, tr.Publish(ctx, "chan-a", []byte("hello")))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message delivery")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []byte("hello"), received)
}

func TestInProcessTransportPublishBeforeConnectFails(t *testing.T) {
	tr := transport.NewInProcessTransport(nil, 64, time.Minute)
	err := tr.Publish(context.Background(), "chan-a", []byte("x"))
	require.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestInProcessTransportDisconnectStopsDelivery(t *testing.T) {
	tr := transport.NewInProcessTransport(nil, 64, time.Minute)
	ctx := context.Background()
	require.NoError(t, tr.Connect(ctx))

	assert.True(t, tr.IsConnected())
	require.NoError(t, tr.Disconnect(ctx))
	assert.False(t, tr.IsConnected())

	err := tr.Publish(ctx, "chan-a", []byte("x"))
	assert.ErrorIs(t, err, transport.ErrNotConnected)
}

func TestKVStoreBasicLifecycle(t *testing.T) {
	tr := transport.NewInProcessTransport(nil, 64, time.Minute)

	require.NoError(t, tr.Store("key-1", "value-1"))
	value, ok, err := tr.Retrieve("key-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "value-1", value)

	exists, err := tr.Exists("key-1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, tr.Delete("key-1"))
	_, ok, err = tr.Retrieve("key-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKVStoreExpiresCustomTTL(t *testing.T) {
	tr := transport.NewInProcessTransport(nil, 64, time.Hour)

	require.NoError(t, tr.StoreWithTTL("short-lived", "v", 30*time.Millisecond))
	exists, err := tr.Exists("short-lived")
	require.NoError(t, err)
	assert.True(t, exists)

	time.Sleep(100 * time.Millisecond)

	exists, err = tr.Exists("short-lived")
	require.NoError(t, err)
	assert.False(t, exists)
}
