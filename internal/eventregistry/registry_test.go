package eventregistry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boredhf/conexus/internal/eventregistry"
	"github.com/boredhf/conexus/internal/events"
)

func TestRegistryEncodeDecodeRoundTrip(t *testing.T) {
	reg := eventregistry.New()
	events.RegisterBuiltins(reg)

	original := events.NewStatusEvent("node-a", events.StatusOnline, "up")
	payload, err := reg.EncodeEvent(original)
	require.NoError(t, err)

	decoded, err := reg.DecodeEvent(events.StatusEventTypeName, payload)
	require.NoError(t, err)

	status, ok := decoded.(*events.StatusEvent)
	require.True(t, ok)
	assert.Equal(t, original.SourceNodeID, status.SourceNodeID)
	assert.Equal(t, original.Status, status.Status)
	assert.Equal(t, original.Message, status.Message)
}

func TestRegistryUnknownTypeFails(t *testing.T) {
	reg := eventregistry.New()
	_, err := reg.DecodeEvent("nonexistent.Type", `{"a":1}`)
	require.ErrorIs(t, err, eventregistry.ErrUnknownEventType)
}

func TestRegistryFallsBackToCustomDecoderOnMalformedJSON(t *testing.T) {
	reg := eventregistry.New()
	called := false
	reg.Register("custom.Type", func() any { return &events.StatusEvent{} }, func(payload string) (any, error) {
		called = true
		return events.NewStatusEvent("node-a", events.StatusDegraded, payload), nil
	})

	decoded, err := reg.DecodeEvent("custom.Type", `{not valid json}`)
	require.NoError(t, err)
	assert.True(t, called)
	status := decoded.(*events.StatusEvent)
	assert.Equal(t, events.StatusDegraded, status.Status)
}

func TestRegistryUsesCustomDecoderForNonJSONPayload(t *testing.T) {
	reg := eventregistry.New()
	reg.Register("plain.Type", func() any { return &events.StatusEvent{} }, func(payload string) (any, error) {
		return events.NewStatusEvent("node-b", events.StatusOffline, payload), nil
	})

	decoded, err := reg.DecodeEvent("plain.Type", "node-b went offline")
	require.NoError(t, err)
	status := decoded.(*events.StatusEvent)
	assert.Equal(t, "node-b went offline", status.Message)
}

func TestRegistryIsRegisteredAndListing(t *testing.T) {
	reg := eventregistry.New()
	events.RegisterBuiltins(reg)

	assert.True(t, reg.IsRegistered(events.StatusEventTypeName))
	assert.False(t, reg.IsRegistered("nope"))
	assert.Contains(t, reg.RegisteredTypeNames(), events.StatusEventTypeName)
}
