// Package config loads the engine's environment/configuration options
// (spec §6.5) using viper, a dependency already present in the teacher's
// go.mod (pulled in transitively via goa.design/clue) promoted here to
// direct use for the engine's own settings.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every recognized environment/configuration option.
type Config struct {
	// PublicBaseURL (PUBLIC_BASE_URL, falling back to NGROK_URL) is the base
	// URL used when inlining approval links in send-task executions.
	PublicBaseURL string

	// DeadlockTimeout (DEADLOCK_TIMEOUT_MS) bounds how long the scheduler
	// waits at an under-subscribed parallel/inclusive join before flagging a
	// deadlock.
	DeadlockTimeout time.Duration

	// CorrelationBufferTTL (CORRELATION_BUFFER_TTL_S) is the grace window
	// during which an early-arriving correlation message is retained for a
	// not-yet-registered waiter.
	CorrelationBufferTTL time.Duration

	// ObserverQueueSize (OBSERVER_QUEUE_SIZE) bounds each observer's
	// outbound event channel.
	ObserverQueueSize int

	// MaxRetriesDefault (MAX_RETRIES_DEFAULT) is the default retry budget
	// for agentic tasks that don't declare their own maxRetries.
	MaxRetriesDefault int

	// ConfidenceDefault (CONFIDENCE_DEFAULT) is the default acceptance
	// threshold for agentic tasks that don't declare their own
	// confidenceThreshold.
	ConfidenceDefault float64

	// HTTPAddr is the bind address for the engine's HTTP API (SPEC_FULL
	// addition; not present in spec.md's §6.5 table).
	HTTPAddr string

	// MongoURI, when non-empty, enables the optional persistence layer for
	// run/session metadata and event-history archival (SPEC_FULL addition).
	MongoURI string

	// PulseRedisAddr, when non-empty, enables mirroring broadcaster events
	// onto a Pulse/Redis-backed sink for durable fan-out across processes
	// (SPEC_FULL addition).
	PulseRedisAddr string
}

// Load reads configuration from the process environment, applying the
// defaults named in spec §6.5.
func Load() *Config {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("deadlock_timeout_ms", 30000)
	v.SetDefault("correlation_buffer_ttl_s", 300)
	v.SetDefault("observer_queue_size", 256)
	v.SetDefault("max_retries_default", 3)
	v.SetDefault("confidence_default", 0.8)
	v.SetDefault("http_addr", ":8080")

	base := v.GetString("public_base_url")
	if base == "" {
		base = v.GetString("ngrok_url")
	}

	return &Config{
		PublicBaseURL:        base,
		DeadlockTimeout:      time.Duration(v.GetInt64("deadlock_timeout_ms")) * time.Millisecond,
		CorrelationBufferTTL: time.Duration(v.GetInt64("correlation_buffer_ttl_s")) * time.Second,
		ObserverQueueSize:    v.GetInt("observer_queue_size"),
		MaxRetriesDefault:    v.GetInt("max_retries_default"),
		ConfidenceDefault:    v.GetFloat64("confidence_default"),
		HTTPAddr:             v.GetString("http_addr"),
		MongoURI:             v.GetString("mongo_uri"),
		PulseRedisAddr:       v.GetString("pulse_redis_addr"),
	}
}
