package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tracking_test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 90*time.Second, cfg.Tracking.StalenessThreshold)
	assert.Equal(t, 3, cfg.Tracking.SpeedRingSize)
	assert.Equal(t, 1.0, cfg.Tracking.MinSpeedFloorKmh)
	assert.Equal(t, time.Duration(0), cfg.Tracking.GeometryCacheTTL)
	assert.Equal(t, "127.0.0.1:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.NATS.URL)
	assert.False(t, cfg.Security.DeviceAuthEnabled)
}

func TestLoad_MissingDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_TrackingOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tracking_test")
	t.Setenv("STALENESS_THRESHOLD_SECONDS", "120")
	t.Setenv("SPEED_RING_SIZE", "5")
	t.Setenv("MIN_SPEED_FLOOR_KMH", "2.5")
	t.Setenv("GEOMETRY_CACHE_TTL_SECONDS", "3600")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 120*time.Second, cfg.Tracking.StalenessThreshold)
	assert.Equal(t, 5, cfg.Tracking.SpeedRingSize)
	assert.Equal(t, 2.5, cfg.Tracking.MinSpeedFloorKmh)
	assert.Equal(t, time.Hour, cfg.Tracking.GeometryCacheTTL)
}

func TestLoad_DeviceAuthRequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/tracking_test")
	t.Setenv("DEVICE_AUTH_ENABLED", "true")
	t.Setenv("DEVICE_TOKEN_SECRET", "")

	_, err := Load()
	assert.Error(t, err)

	t.Setenv("DEVICE_TOKEN_SECRET", "test-secret")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Security.DeviceAuthEnabled)
}

func TestGetEnvSlice(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	out := getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"})
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, out)
}
