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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "tally-api", cfg.AppName)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, "db/pg", cfg.DatabaseMigrationFolderPath)
	assert.Equal(t, "collation-activity", cfg.KafkaActivityTopic)
	assert.Equal(t, 50, cfg.ActivityFeedDefaultLimit)
	assert.Equal(t, 500, cfg.ActivityFeedMaxLimit)
	assert.Equal(t, 5*time.Second, cfg.DashboardCacheTTL())
}

func TestLoad_EnvFileAndEnvironment(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORE_DRIVER=memory\nDB_NAME=collation\n"), 0o600))
	t.Setenv("PORT", "8081")
	t.Cleanup(func() {
		_ = os.Unsetenv("STORE_DRIVER")
		_ = os.Unsetenv("DB_NAME")
	})

	cfg, err := Load(envFile)
	require.NoError(t, err)

	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, 8081, cfg.Port)
	assert.Contains(t, cfg.DatabaseURL(), "dbname=collation")
}

func TestValidate(t *testing.T) {
	cfg := Config{StoreDriver: "sqlite", TracingExporter: "none", ActivityFeedDefaultLimit: 50, ActivityFeedMaxLimit: 500}
	assert.Error(t, cfg.Validate())

	cfg.StoreDriver = StoreDriverMemory
	assert.NoError(t, cfg.Validate())

	cfg.TracingExporter = "console"
	assert.Error(t, cfg.Validate())

	cfg.TracingExporter = "otlp"
	cfg.AuthEnabled = true
	assert.Error(t, cfg.Validate())

	cfg.AuthEnabled = false
	cfg.ActivityFeedMaxLimit = 10
	assert.Error(t, cfg.Validate())
}
