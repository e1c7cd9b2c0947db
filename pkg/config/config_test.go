package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_defaults(t *testing.T) {
	t.Setenv("DB_HOST", "")
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("GIGACHAT_API_KEY", "")
	t.Setenv("RAZORPAY_KEY_ID", "")
	t.Setenv("MINIO_ENDPOINT", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 60*time.Minute, cfg.Agent.PaymentLinkTTL)
	assert.Equal(t, 5, cfg.Agent.SummaryInterval)
	assert.Equal(t, "https://api.razorpay.com/v1", cfg.Razorpay.BaseURL)
	assert.False(t, cfg.GigaChat.Enabled())
	assert.False(t, cfg.Razorpay.Enabled())
	assert.False(t, cfg.Minio.Enabled())
}

func TestLoad_postgresWhenDatabaseConfigured(t *testing.T) {
	t.Setenv("STORE_BACKEND", "")
	t.Setenv("DB_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "db.internal", cfg.Database.Host)

	t.Setenv("STORE_BACKEND", StoreMemory)
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
}

func TestGetDuration(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT", "90s")
	assert.Equal(t, 90*time.Second, getDuration("PAYMENT_TIMEOUT", time.Second))

	t.Setenv("PAYMENT_TIMEOUT", "20")
	assert.Equal(t, 20*time.Second, getDuration("PAYMENT_TIMEOUT", time.Second))

	t.Setenv("PAYMENT_TIMEOUT", "soon")
	assert.Equal(t, time.Second, getDuration("PAYMENT_TIMEOUT", time.Second))
}
