// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN the store connects to.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint (e.g. http://localhost:4317).
	// Empty disables exporting; providers become no-ops.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// RetryMaxAttempts is the total attempts per pipeline operation, including the first.
	RetryMaxAttempts int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	// RetryDelay is the pause between transient-fault retries (e.g. "50ms").
	RetryDelay string `mapstructure:"RETRY_DELAY"`
	// SessionTTL is the default session lifetime used by the seed tool (e.g. "24h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// CleanupGrace keeps sessions expired less than this long ago out of the
	// cleanup sweep (e.g. "720h" to retain 30 days for audit).
	CleanupGrace string `mapstructure:"CLEANUP_GRACE"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI); env vars
// override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("RETRY_DELAY", "50ms")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("CLEANUP_GRACE", "0s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.RetryMaxAttempts < 1 {
		return nil, errors.New("config: RETRY_MAX_ATTEMPTS must be at least 1")
	}
	return &cfg, nil
}

// RetryDelayDuration parses RetryDelay. Returns 50ms if unset or invalid.
func (c *Config) RetryDelayDuration() time.Duration {
	d, err := time.ParseDuration(c.RetryDelay)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

// SessionTTLDuration parses SessionTTL. Returns 24h if unset or invalid.
func (c *Config) SessionTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.SessionTTL)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// CleanupGraceDuration parses CleanupGrace. Returns 0 if unset or invalid.
func (c *Config) CleanupGraceDuration() time.Duration {
	d, err := time.ParseDuration(c.CleanupGrace)
	if err != nil || d < 0 {
		return 0
	}
	return d
}
