// Package config loads and validates the fabric's runtime configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the messaging and event-service layers.
// Field names mirror the CONEXUS_* environment variables and config
// file keys viper resolves them from.
type Config struct {
	NodeID string `mapstructure:"node_id"`

	EnableCrossNodeBroadcast  bool `mapstructure:"enable_cross_node_broadcast"`
	EnableLocalProcessing     bool `mapstructure:"enable_local_processing"`
	EnableGracefulDegradation bool `mapstructure:"enable_graceful_degradation"`

	CircuitBreakerFailureThreshold int           `mapstructure:"circuit_breaker_failure_threshold"`
	CircuitBreakerTimeout          time.Duration `mapstructure:"circuit_breaker_timeout"`

	MaxRetryAttempts       int     `mapstructure:"max_retry_attempts"`
	RetryDelay             time.Duration `mapstructure:"retry_delay"`
	RetryBackoffMultiplier float64 `mapstructure:"retry_backoff_multiplier"`

	EventProcessingTimeout  time.Duration `mapstructure:"event_processing_timeout"`
	NetworkBroadcastTimeout time.Duration `mapstructure:"network_broadcast_timeout"`

	MaxConcurrentEvents int `mapstructure:"max_concurrent_events"`

	// EventBroadcastChannel is retained for configuration compatibility.
	// The event service broadcasts through MessagingService.Broadcast
	// (the generic "broadcast" channel) rather than this dedicated
	// channel name; see the design ledger for why.
	EventBroadcastChannel string `mapstructure:"event_broadcast_channel"`

	AMQPURI    string `mapstructure:"amqp_uri"`
	KVCapacity int    `mapstructure:"kv_capacity"`
	KVDefaultTTL time.Duration `mapstructure:"kv_default_ttl"`

	// MetricsAddr is the listen address for the Prometheus scrape
	// endpoint. Empty disables the metrics HTTP server.
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Default returns a Config populated with spec-mandated defaults.
func Default() Config {
	return Config{
		EnableCrossNodeBroadcast:       true,
		EnableLocalProcessing:          true,
		EnableGracefulDegradation:      true,
		CircuitBreakerFailureThreshold: 5,
		CircuitBreakerTimeout:          30 * time.Second,
		MaxRetryAttempts:               3,
		RetryDelay:                     time.Second,
		RetryBackoffMultiplier:         2.0,
		EventProcessingTimeout:         10 * time.Second,
		NetworkBroadcastTimeout:        5 * time.Second,
		MaxConcurrentEvents:            100,
		EventBroadcastChannel:          "conexus:events",
		KVCapacity:                     4096,
		KVDefaultTTL:                   5 * time.Minute,
		MetricsAddr:                    ":9090",
	}
}

// Load reads configuration from CONEXUS_-prefixed environment variables
// and, if present, a config file at path (any format viper supports:
// yaml, toml, json). Unset fields fall back to Default().
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("conexus")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("node_id", defaults.NodeID)
	v.SetDefault("amqp_uri", defaults.AMQPURI)
	v.SetDefault("enable_cross_node_broadcast", defaults.EnableCrossNodeBroadcast)
	v.SetDefault("enable_local_processing", defaults.EnableLocalProcessing)
	v.SetDefault("enable_graceful_degradation", defaults.EnableGracefulDegradation)
	v.SetDefault("circuit_breaker_failure_threshold", defaults.CircuitBreakerFailureThreshold)
	v.SetDefault("circuit_breaker_timeout", defaults.CircuitBreakerTimeout)
	v.SetDefault("max_retry_attempts", defaults.MaxRetryAttempts)
	v.SetDefault("retry_delay", defaults.RetryDelay)
	v.SetDefault("retry_backoff_multiplier", defaults.RetryBackoffMultiplier)
	v.SetDefault("event_processing_timeout", defaults.EventProcessingTimeout)
	v.SetDefault("network_broadcast_timeout", defaults.NetworkBroadcastTimeout)
	v.SetDefault("max_concurrent_events", defaults.MaxConcurrentEvents)
	v.SetDefault("event_broadcast_channel", defaults.EventBroadcastChannel)
	v.SetDefault("kv_capacity", defaults.KVCapacity)
	v.SetDefault("kv_default_ttl", defaults.KVDefaultTTL)
	v.SetDefault("metrics_addr", defaults.MetricsAddr)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces spec §3's construction-time validation rules.
func (c Config) Validate() error {
	if strings.TrimSpace(c.NodeID) == "" {
		return fmt.Errorf("config: node_id must be non-empty")
	}
	if c.CircuitBreakerFailureThreshold < 1 {
		return fmt.Errorf("config: circuit_breaker_failure_threshold must be >= 1")
	}
	if c.MaxRetryAttempts < 1 {
		return fmt.Errorf("config: max_retry_attempts must be >= 1")
	}
	if c.MaxConcurrentEvents < 1 {
		return fmt.Errorf("config: max_concurrent_events must be >= 1")
	}
	if c.CircuitBreakerTimeout < time.Second {
		return fmt.Errorf("config: circuit_breaker_timeout must be >= 1000ms")
	}
	if c.EventProcessingTimeout < time.Second {
		return fmt.Errorf("config: event_processing_timeout must be >= 1000ms")
	}
	if c.NetworkBroadcastTimeout < time.Second {
		return fmt.Errorf("config: network_broadcast_timeout must be >= 1000ms")
	}
	if c.RetryBackoffMultiplier < 1.0 {
		return fmt.Errorf("config: retry_backoff_multiplier must be >= 1.0")
	}
	if strings.TrimSpace(c.EventBroadcastChannel) == "" {
		return fmt.Errorf("config: event_broadcast_channel must be non-empty")
	}
	return nil
}

// MaxRetryDelay deduces the retry manager's maxDelay as 10x baseDelay,
// per spec §3, when the caller doesn't override it explicitly.
func (c Config) MaxRetryDelay() time.Duration {
	return c.RetryDelay * 10
}
