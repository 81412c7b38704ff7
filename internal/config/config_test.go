package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "America/New_York", cfg.Business.Timezone)
	assert.Equal(t, int64(10), cfg.Business.DailyGrantAmount)
	assert.Equal(t, int64(50), cfg.Business.GachaCost)
	assert.Equal(t, 5, cfg.Business.ReportHideThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Business.OutboxInterval)
	assert.False(t, cfg.Redis.Enabled)
	assert.Empty(t, cfg.Kafka.Brokers)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: postgres
  host: db.internal
business:
  gacha_cost: 75
  timezone: Asia/Tokyo
kafka:
  brokers:
    - kafka-1:9092
`), 0o600))

	t.Setenv("OTAKUMORI_BUSINESS_DAILY_GRANT_AMOUNT", "25")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, int64(75), cfg.Business.GachaCost)
	assert.Equal(t, int64(25), cfg.Business.DailyGrantAmount)
	assert.Equal(t, "Asia/Tokyo", cfg.Business.Timezone)
	assert.Equal(t, []string{"kafka-1:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 3, cfg.Business.DailyQuestCount)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Business.Timezone = "Nowhere/Special"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Business.GachaCost = 0
	assert.Error(t, cfg.Validate())

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
