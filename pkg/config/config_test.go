package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrackpro/payments/pkg/observability"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MEDITRACK_INTENT_URL", "http://intent.internal:9000")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)

	assert.Equal(t, "http://intent.internal:9000", cfg.Upstream.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Upstream.Timeout)

	assert.Equal(t, "https://checkout.razorpay.com/v1/checkout.js", cfg.Gateway.CheckoutURL)

	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, "redis://localhost:6379", cfg.Session.Redis.URL)

	assert.Equal(t, "/login", cfg.Checkout.LoginRedirectURL)
	assert.Equal(t, 7*24*time.Hour, cfg.Checkout.DirectTransferWindow)
	assert.Equal(t, 1024, cfg.Checkout.ReceiptCacheSize)
	assert.Equal(t, "*/5 * * * *", cfg.Checkout.StaleSweepSchedule)

	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
	assert.True(t, cfg.Observability.MetricsEnabled)
	assert.False(t, cfg.Observability.OTelEnabled)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("MEDITRACK_INTENT_URL", "http://intent.internal:9000")
	t.Setenv("MEDITRACK_PORT", "8181")
	t.Setenv("MEDITRACK_SESSION_BACKEND", "memory")
	t.Setenv("MEDITRACK_LOG_LEVEL", "debug")
	t.Setenv("MEDITRACK_DIRECT_TRANSFER_WINDOW", "48h")
	t.Setenv("MEDITRACK_GATEWAY_WEBHOOK_SECRET", "s3cret")
	t.Setenv("MEDITRACK_REDIS_DB", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8181", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel)
	assert.Equal(t, 48*time.Hour, cfg.Checkout.DirectTransferWindow)
	assert.Equal(t, "s3cret", cfg.Gateway.WebhookSecret)
	assert.Equal(t, 4, cfg.Session.Redis.DB)
}

func TestLoadConfigRequiresIntentURL(t *testing.T) {
	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "intent service URL is required")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080", HealthPort: "9090"},
			Upstream: UpstreamConfig{BaseURL: "http://intent.internal:9000"},
			Session:  SessionConfig{Backend: "memory"},
			Checkout: CheckoutConfig{
				ReceiptCacheSize:     128,
				DirectTransferWindow: time.Hour,
			},
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("same server and health port", func(t *testing.T) {
		cfg := valid()
		cfg.Server.HealthPort = cfg.Server.Port
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "must be different")
	})

	t.Run("unknown session backend", func(t *testing.T) {
		cfg := valid()
		cfg.Session.Backend = "dynamo"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid session backend")
	})

	t.Run("redis backend requires URL", func(t *testing.T) {
		cfg := valid()
		cfg.Session.Backend = "redis"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis URL is required")
	})

	t.Run("non-positive cache size", func(t *testing.T) {
		cfg := valid()
		cfg.Checkout.ReceiptCacheSize = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("otel enabled requires endpoint", func(t *testing.T) {
		cfg := valid()
		cfg.Observability.OTelEnabled = true
		cfg.Observability.OTelServiceName = "meditrack-payments"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "endpoint is required")
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("bogus"))
}
