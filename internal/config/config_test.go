package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boredhf/conexus/internal/config"
)

func TestDefaultConfigIsValidOnceNodeIDSet(t *testing.T) {
	cfg := config.Default()
	cfg.NodeID = "node-a"
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyNodeID(t *testing.T) {
	cfg := config.Default()
	err := cfg.Validate()
	assert.Error(t, err)
}

func TestValidateRejectsSubThresholds(t *testing.T) {
	cfg := config.Default()
	cfg.NodeID = "node-a"
	cfg.CircuitBreakerFailureThreshold = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSubSecondTimeouts(t *testing.T) {
	cfg := config.Default()
	cfg.NodeID = "node-a"
	cfg.CircuitBreakerTimeout = 500 * time.Millisecond
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsSubUnityMultiplier(t *testing.T) {
	cfg := config.Default()
	cfg.NodeID = "node-a"
	cfg.RetryBackoffMultiplier = 0.5
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsEmptyChannelName(t *testing.T) {
	cfg := config.Default()
	cfg.NodeID = "node-a"
	cfg.EventBroadcastChannel = "  "
	assert.Error(t, cfg.Validate())
}

func TestMaxRetryDelayDeducedFromBaseDelay(t *testing.T) {
	cfg := config.Default()
	cfg.RetryDelay = 200 * time.Millisecond
	assert.Equal(t, 2*time.Second, cfg.MaxRetryDelay())
}
