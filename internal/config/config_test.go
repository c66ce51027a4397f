package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	assert.Equal(t, 2*time.Second, cfg.Relay.Interval)
	assert.Equal(t, 15, cfg.Relay.BatchSize)
	assert.Equal(t, 10, cfg.Relay.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.Relay.MetricsInterval)
	assert.Equal(t, 100, cfg.Relay.LagSampleSize)

	assert.Equal(t, 5*time.Second, cfg.Consumer.PollInterval)
	assert.Equal(t, 10, cfg.Consumer.BatchSize)

	assert.Equal(t, []string{"127.0.0.1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "events.", cfg.Kafka.TopicPrefix)
	assert.True(t, cfg.Forwarder.Enabled)
	assert.True(t, cfg.Analytics.Enabled)
}

func TestLoadMergesUserFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  batch_size: 50\nforwarder:\n  subscription: taskflow\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	// overridden
	assert.Equal(t, 50, cfg.Relay.BatchSize)
	assert.Equal(t, "taskflow", cfg.Forwarder.Subscription)
	// untouched defaults survive the merge
	assert.Equal(t, 10, cfg.Relay.MaxAttempts)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}
