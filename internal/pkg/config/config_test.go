package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "order-items-reserver", cfg.QueueName)
	assert.Equal(t, time.Duration(0), cfg.MaxWait)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, time.Duration(0), cfg.ProcessingDelay)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoadClamps(t *testing.T) {
	t.Setenv("MAX_WAIT_SECONDS", "-5")
	t.Setenv("POLL_INTERVAL_SECONDS", "0")
	t.Setenv("WORKER_CONCURRENCY", "0")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, time.Duration(0), cfg.MaxWait, "negative wait clamps to no wait")
	assert.Equal(t, time.Second, cfg.PollInterval, "interval floor is one second")
	assert.Equal(t, 1, cfg.WorkerConcurrency)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("QUEUE_NAME", "orders-test")
	t.Setenv("MAX_WAIT_SECONDS", "30")
	t.Setenv("POLL_INTERVAL_SECONDS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "orders-test", cfg.QueueName)
	assert.Equal(t, 30*time.Second, cfg.MaxWait)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
}
