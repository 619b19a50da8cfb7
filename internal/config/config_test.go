package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("NODE_ENV", "")
	t.Setenv("DATABASE_URL_DEV", "sqlite:dev.db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "sqlite:dev.db", cfg.DatabaseURL)
	assert.Equal(t, 30*time.Minute, cfg.BatchTTL)
	assert.False(t, cfg.Ledger.Enabled)
	assert.Equal(t, "mychannel", cfg.Ledger.Channel)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_ProductionAndLedger(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL_PROD", "postgres://prod")
	t.Setenv("DATABASE_URL_DEV", "sqlite:dev.db")
	t.Setenv("ADMIN_KEY", "s3cret")
	t.Setenv("BATCH_TTL", "5m")
	t.Setenv("LEDGER_ENABLED", "true")
	t.Setenv("LEDGER_PEER_ENDPOINT", "peer0:7051")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres://prod", cfg.DatabaseURL)
	assert.Equal(t, "s3cret", cfg.AdminKey)
	assert.Equal(t, 5*time.Minute, cfg.BatchTTL)
	assert.True(t, cfg.Ledger.Enabled)
	assert.Equal(t, "peer0:7051", cfg.Ledger.PeerEndpoint)
}

func TestLoad_BadBatchTTL(t *testing.T) {
	t.Setenv("BATCH_TTL", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "BATCH_TTL")
}
