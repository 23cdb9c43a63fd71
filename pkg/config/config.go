package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/meditrackpro/payments/pkg/gateway"
	"github.com/meditrackpro/payments/pkg/observability"
	"github.com/meditrackpro/payments/pkg/session"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Upstream IntentService configuration
	Upstream UpstreamConfig

	// Gateway configuration
	Gateway gateway.Config

	// Session store configuration
	Session SessionConfig

	// Checkout configuration
	Checkout CheckoutConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// UpstreamConfig holds IntentService client configuration
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

// SessionConfig holds tenant session store configuration
type SessionConfig struct {
	// Backend selects the store implementation: "redis" or "memory"
	Backend string
	Redis   session.RedisConfig
}

// CheckoutConfig holds checkout orchestration configuration
type CheckoutConfig struct {
	LoginRedirectURL     string
	DirectTransferWindow time.Duration

	// CatalogPath points at a YAML pricing catalog; empty uses the
	// built-in catalog. WatchCatalog hot-reloads it on change.
	CatalogPath  string
	WatchCatalog bool

	// ReceiptCacheSize bounds the LRU of recently finalized checkouts
	ReceiptCacheSize int

	// StaleSessionAge marks how old an open gateway session must be
	// before the sweep reports it; StaleSweepSchedule is its cron spec
	StaleSessionAge    time.Duration
	StaleSweepSchedule string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Upstream:      loadUpstreamConfig(),
		Gateway:       loadGatewayConfig(),
		Session:       loadSessionConfig(),
		Checkout:      loadCheckoutConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MEDITRACK_HOST", "0.0.0.0"),
		Port:            getEnv("MEDITRACK_PORT", "8080"),
		ReadTimeout:     getEnvDuration("MEDITRACK_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MEDITRACK_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("MEDITRACK_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MEDITRACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("MEDITRACK_HEALTH_PORT", "9090"),
	}
}

// loadUpstreamConfig loads IntentService configuration from environment
func loadUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL: getEnv("MEDITRACK_INTENT_URL", ""),
		Timeout: getEnvDuration("MEDITRACK_INTENT_TIMEOUT", 15*time.Second),
	}
}

// loadGatewayConfig loads payment gateway configuration from environment
func loadGatewayConfig() gateway.Config {
	return gateway.Config{
		CheckoutURL:   getEnv("MEDITRACK_GATEWAY_CHECKOUT_URL", gateway.DefaultCheckoutURL),
		WebhookSecret: getEnv("MEDITRACK_GATEWAY_WEBHOOK_SECRET", ""),
		HTTPTimeout:   getEnvDuration("MEDITRACK_GATEWAY_TIMEOUT", 10*time.Second),
	}
}

// loadSessionConfig loads session store configuration from environment
func loadSessionConfig() SessionConfig {
	return SessionConfig{
		Backend: getEnv("MEDITRACK_SESSION_BACKEND", "redis"),
		Redis: session.RedisConfig{
			URL:        getEnv("MEDITRACK_REDIS_URL", "redis://localhost:6379"),
			Password:   getEnv("MEDITRACK_REDIS_PASSWORD", ""),
			DB:         getEnvInt("MEDITRACK_REDIS_DB", 0),
			MaxRetries: getEnvInt("MEDITRACK_REDIS_MAX_RETRIES", 3),
			PoolSize:   getEnvInt("MEDITRACK_REDIS_POOL_SIZE", 10),
			TTL:        getEnvDuration("MEDITRACK_SESSION_TTL", 0),
		},
	}
}

// loadCheckoutConfig loads checkout configuration from environment
func loadCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		LoginRedirectURL:     getEnv("MEDITRACK_LOGIN_REDIRECT_URL", "/login"),
		DirectTransferWindow: getEnvDuration("MEDITRACK_DIRECT_TRANSFER_WINDOW", 7*24*time.Hour),
		CatalogPath:          getEnv("MEDITRACK_CATALOG_PATH", ""),
		WatchCatalog:         getEnvBool("MEDITRACK_CATALOG_WATCH", false),
		ReceiptCacheSize:     getEnvInt("MEDITRACK_RECEIPT_CACHE_SIZE", 1024),
		StaleSessionAge:      getEnvDuration("MEDITRACK_STALE_SESSION_AGE", 30*time.Minute),
		StaleSweepSchedule:   getEnv("MEDITRACK_STALE_SWEEP_SCHEDULE", "*/5 * * * *"),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("MEDITRACK_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("MEDITRACK_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("MEDITRACK_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("MEDITRACK_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("MEDITRACK_OTEL_SERVICE_NAME", "meditrack-payments"),
		OTelServiceVersion: getEnv("MEDITRACK_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("MEDITRACK_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate upstream config
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("intent service URL is required (MEDITRACK_INTENT_URL)")
	}

	// Validate session store config
	switch c.Session.Backend {
	case "redis":
		if c.Session.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for redis session backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid session backend: %s (must be redis or memory)", c.Session.Backend)
	}

	// Validate checkout config
	if c.Checkout.ReceiptCacheSize <= 0 {
		return fmt.Errorf("receipt cache size must be positive")
	}
	if c.Checkout.DirectTransferWindow <= 0 {
		return fmt.Errorf("direct transfer window must be positive")
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
