package config

import (
	"testing"
	"time"

	"bloom-payments/internal/domain/payment"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "PROVIDER_CALL_TIMEOUT", "FAILED_RETENTION", "MAINTENANCE_INTERVAL", "DEFAULT_CARD_PROVIDER", "REDIS_ADDR"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ProviderCallTimeout)
	assert.Equal(t, 5*time.Minute, cfg.ClientCacheTTL)
	assert.Equal(t, 720*time.Hour, cfg.FailedRetention)
	assert.Zero(t, cfg.MaintenanceInterval)
	assert.Equal(t, payment.ProviderStripe, cfg.DefaultCardProvider)
	assert.Equal(t, []string{"localhost:6379"}, cfg.RedisAddrs)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "Production")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("PROVIDER_CALL_TIMEOUT", "45")
	t.Setenv("MAINTENANCE_INTERVAL", "1h")
	t.Setenv("DEFAULT_CARD_PROVIDER", "square")
	t.Setenv("REDIS_ADDR", "r1:6379, r2:6379")
	t.Setenv("SMTP_SECURE", "false")

	cfg := Load()
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 45*time.Second, cfg.ProviderCallTimeout)
	assert.Equal(t, time.Hour, cfg.MaintenanceInterval)
	assert.Equal(t, payment.ProviderSquare, cfg.DefaultCardProvider)
	assert.Equal(t, []string{"r1:6379", "r2:6379"}, cfg.RedisAddrs)
	assert.False(t, cfg.SMTPSecure)
}

func TestGetEnvDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("CLIENT_CACHE_TTL", "soon")
	assert.Equal(t, 5*time.Minute, Load().ClientCacheTTL)
}
