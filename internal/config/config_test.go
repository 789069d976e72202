package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Delivery.MaxAttempts)
	assert.Equal(t, []time.Duration{5 * time.Minute, 15 * time.Minute, time.Hour}, cfg.Delivery.RetrySchedule)
	assert.Equal(t, 10*time.Minute, cfg.Delivery.LockTTL)
	assert.Equal(t, 24*time.Hour, cfg.Delivery.LockRetention)
	assert.Equal(t, 10*time.Second, cfg.Delivery.ConnectTimeout)
	assert.Equal(t, 300*time.Second, cfg.Delivery.AttemptTimeout)
	assert.Equal(t, int64(5*1024*1024), cfg.Delivery.MultipartThreshold)
	assert.Equal(t, "deliveries", cfg.Delivery.Queue)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DELIVERY_MAX_ATTEMPTS", "2")
	t.Setenv("DELIVERY_RETRY_SCHEDULE", "1m")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Delivery.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Minute}, cfg.Delivery.RetrySchedule)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoad_ScheduleTooShort(t *testing.T) {
	t.Setenv("DELIVERY_MAX_ATTEMPTS", "4")
	t.Setenv("DELIVERY_RETRY_SCHEDULE", "5m")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidSchedule(t *testing.T) {
	t.Setenv("DELIVERY_RETRY_SCHEDULE", "5 minutes")

	_, err := Load()
	assert.Error(t, err)
}

func TestReadSecret_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(path, []byte("s3cr3t\n"), 0o600))

	t.Setenv("CATALOG_API_KEY", "")
	t.Setenv("CATALOG_API_KEY_FILE", path)

	readSecret("CATALOG_API_KEY")
	assert.Equal(t, "s3cr3t", os.Getenv("CATALOG_API_KEY"))
}
