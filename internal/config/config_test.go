package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadForTest(t *testing.T) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadForTest(t)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 200, cfg.RateLimit.HourlyQuota)
	assert.Equal(t, 4800, cfg.RateLimit.DailyQuota)
	assert.Equal(t, 25, cfg.Insights.PageSize)
	assert.Equal(t, 2, cfg.Analyzer.MinGapDays)
	assert.Equal(t, 3, cfg.Anomaly.MinBaselineSamples)
	assert.Equal(t, time.Hour, cfg.Freshness.RecentHalfLife)
	assert.Equal(t, 2, cfg.Planner.IncrementalTailDays)
	assert.Equal(t, 800*time.Millisecond, cfg.Planner.PerCallLatency)
}

func TestCacheDurations(t *testing.T) {
	cfg := loadForTest(t)

	assert.Equal(t, 5*time.Minute, cfg.Cache.MemoryTTLDuration())
	assert.Equal(t, time.Hour, cfg.Cache.PersistentTTLDuration())
	assert.Equal(t, 10*time.Minute, cfg.Cache.JanitorIntervalDuration())
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_HOURLY_QUOTA", "50")
	cfg := loadForTest(t)
	assert.Equal(t, 50, cfg.RateLimit.HourlyQuota)
}

func TestJWTSecretRequiredOutsideDevelopment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load()
	assert.Error(t, err)
}

func TestInvalidJWTExpiryRejected(t *testing.T) {
	t.Setenv("SECURITY_JWT_EXPIRY", "not-a-duration")
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load()
	assert.Error(t, err)
}
