package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("DB_USER", "shop")
	t.Setenv("DB_NAME", "ebooks")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "shop", cfg.DB.User)
	assert.Equal(t, "3306", cfg.DB.Port)
	assert.Equal(t, "sk_test_123", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_123", cfg.Stripe.WebhookSecret)
	assert.Equal(t, 10*time.Second, cfg.Checkout.GatewayTimeout)
	assert.Equal(t, "usd", cfg.Checkout.Currency)
	assert.True(t, cfg.Cache.MethodSet["GET"])
	assert.Equal(t, 60, cfg.RateLimit.Capacity)
	assert.False(t, cfg.IsProd())
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "prod")
	t.Setenv("CHECKOUT_CURRENCY", "EUR")
	t.Setenv("CHECKOUT_GATEWAY_TIMEOUT", "3s")
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProd())
	assert.Equal(t, "eur", cfg.Checkout.Currency)
	assert.Equal(t, 3*time.Second, cfg.Checkout.GatewayTimeout)
	assert.True(t, cfg.Cache.MethodSet["HEAD"])
	assert.Equal(t, 5, cfg.RateLimit.Capacity)
	assert.Equal(t, 1, cfg.RateLimit.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.TTL)
}

func TestRedisConfig_Address(t *testing.T) {
	assert.Equal(t, "localhost:6379", RedisConfig{Addr: "localhost:6379"}.Address())
	assert.Equal(t, "cache:6380", RedisConfig{Addr: "x:1", Host: "cache", Port: "6380"}.Address())
}
