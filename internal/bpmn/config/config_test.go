package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_DefaultsApplyWhenUnset(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	assert.Equal(t, 30000*time.Millisecond, cfg.DeadlockTimeout)
	assert.Equal(t, 300*time.Second, cfg.CorrelationBufferTTL)
	assert.Equal(t, 256, cfg.ObserverQueueSize)
	assert.Equal(t, 3, cfg.MaxRetriesDefault)
	assert.Equal(t, 0.8, cfg.ConfidenceDefault)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Empty(t, cfg.PublicBaseURL)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEADLOCK_TIMEOUT_MS", "5000")
	t.Setenv("CORRELATION_BUFFER_TTL_S", "60")
	t.Setenv("OBSERVER_QUEUE_SIZE", "16")
	t.Setenv("MAX_RETRIES_DEFAULT", "5")
	t.Setenv("CONFIDENCE_DEFAULT", "0.5")
	t.Setenv("PUBLIC_BASE_URL", "https://engine.example.com")

	cfg := Load()

	assert.Equal(t, 5000*time.Millisecond, cfg.DeadlockTimeout)
	assert.Equal(t, 60*time.Second, cfg.CorrelationBufferTTL)
	assert.Equal(t, 16, cfg.ObserverQueueSize)
	assert.Equal(t, 5, cfg.MaxRetriesDefault)
	assert.Equal(t, 0.5, cfg.ConfidenceDefault)
	assert.Equal(t, "https://engine.example.com", cfg.PublicBaseURL)
}

func TestLoad_FallsBackToNgrokURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("NGROK_URL", "https://abc123.ngrok.io")

	cfg := Load()

	assert.Equal(t, "https://abc123.ngrok.io", cfg.PublicBaseURL)
}

func TestLoad_PublicBaseURLTakesPrecedenceOverNgrok(t *testing.T) {
	clearEnv(t)
	t.Setenv("PUBLIC_BASE_URL", "https://engine.example.com")
	t.Setenv("NGROK_URL", "https://abc123.ngrok.io")

	cfg := Load()

	assert.Equal(t, "https://engine.example.com", cfg.PublicBaseURL)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PUBLIC_BASE_URL", "NGROK_URL", "DEADLOCK_TIMEOUT_MS",
		"CORRELATION_BUFFER_TTL_S", "OBSERVER_QUEUE_SIZE",
		"MAX_RETRIES_DEFAULT", "CONFIDENCE_DEFAULT", "HTTP_ADDR",
		"MONGO_URI", "PULSE_REDIS_ADDR",
	} {
		_ = os.Unsetenv(k)
	}
}
