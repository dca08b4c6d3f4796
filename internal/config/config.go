// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RateLimitRule is the (limit, window) pair for one endpoint class.
type RateLimitRule struct {
	Limit  int64
	Window time.Duration
}

// Endpoint classes used by the rate limiter. Each has its own rule.
const (
	EndpointClassGeneral  = "general"
	EndpointClassAuth     = "auth"
	EndpointClassExternal = "external"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN for identity/session/audit records.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the counter-store DSN (redis://host:port/db). Empty selects
	// the in-process store; only valid for single-instance deployments.
	RedisURL string `mapstructure:"REDIS_URL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "medianest-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "medianest-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTL is the session lifetime (e.g. "24h").
	SessionTTL string `mapstructure:"SESSION_TTL"`
	// RememberTokenTTL is the remember-token lifetime (default "2160h", 90 days).
	RememberTokenTTL string `mapstructure:"REMEMBER_TOKEN_TTL"`
	// BcryptCost is the bcrypt cost factor (4-31) for local credentials; default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// AdminUsername and AdminPassword are the bootstrap admin credentials
	// consumed by cmd/seed. Never used by the server at runtime.
	AdminUsername string `mapstructure:"ADMIN_USERNAME"`
	AdminPassword string `mapstructure:"ADMIN_PASSWORD"`

	// PlexBaseURL is the identity provider API base URL.
	PlexBaseURL string `mapstructure:"PLEX_BASE_URL"`
	// PlexClientID identifies this installation to the provider (X-Plex-Client-Identifier).
	PlexClientID string `mapstructure:"PLEX_CLIENT_ID"`
	// PlexProduct is the product name shown on the provider's link page.
	PlexProduct string `mapstructure:"PLEX_PRODUCT"`

	// MediaBrokerURL is the media-request broker base URL (e.g. an Overseerr-compatible API).
	MediaBrokerURL string `mapstructure:"MEDIA_BROKER_URL"`
	// MediaBrokerAPIKey authenticates broker calls.
	MediaBrokerAPIKey string `mapstructure:"MEDIA_BROKER_API_KEY"`
	// UptimeMonitorURL is the uptime-monitor base URL.
	UptimeMonitorURL string `mapstructure:"UPTIME_MONITOR_URL"`

	// PinTTL is how long a linking PIN stays redeemable (default "5m").
	PinTTL string `mapstructure:"PIN_TTL"`
	// PinPollCeiling caps provider checks per PIN, bounding server-side work
	// even when a client polls faster than advised.
	PinPollCeiling int64 `mapstructure:"PIN_POLL_CEILING"`

	// Rate limits per endpoint class: request ceiling and window.
	RateLimitGeneral        int64  `mapstructure:"RATE_LIMIT_GENERAL"`
	RateLimitGeneralWindow  string `mapstructure:"RATE_LIMIT_GENERAL_WINDOW"`
	RateLimitAuth           int64  `mapstructure:"RATE_LIMIT_AUTH"`
	RateLimitAuthWindow     string `mapstructure:"RATE_LIMIT_AUTH_WINDOW"`
	RateLimitExternal       int64  `mapstructure:"RATE_LIMIT_EXTERNAL"`
	RateLimitExternalWindow string `mapstructure:"RATE_LIMIT_EXTERNAL_WINDOW"`

	// Circuit breaker and retry tuning, shared by all dependencies unless a
	// per-dependency override below is set.
	BreakerFailureThreshold int64  `mapstructure:"BREAKER_FAILURE_THRESHOLD"`
	BreakerResetTimeout     string `mapstructure:"BREAKER_RESET_TIMEOUT"`
	BreakerMaxResetTimeout  string `mapstructure:"BREAKER_MAX_RESET_TIMEOUT"`
	DependencyTimeout       string `mapstructure:"DEPENDENCY_TIMEOUT"`
	RetryMaxAttempts        int    `mapstructure:"RETRY_MAX_ATTEMPTS"`

	// Per-dependency overrides. Zero or empty falls back to the shared value.
	PlexTimeout                   string `mapstructure:"PLEX_TIMEOUT"`
	PlexBreakerThreshold          int64  `mapstructure:"PLEX_BREAKER_FAILURE_THRESHOLD"`
	PlexBreakerReset              string `mapstructure:"PLEX_BREAKER_RESET_TIMEOUT"`
	MediaBrokerTimeout            string `mapstructure:"MEDIA_BROKER_TIMEOUT"`
	MediaBrokerBreakerThreshold   int64  `mapstructure:"MEDIA_BROKER_BREAKER_FAILURE_THRESHOLD"`
	MediaBrokerBreakerReset       string `mapstructure:"MEDIA_BROKER_BREAKER_RESET_TIMEOUT"`
	UptimeMonitorTimeout          string `mapstructure:"UPTIME_MONITOR_TIMEOUT"`
	UptimeMonitorBreakerThreshold int64  `mapstructure:"UPTIME_MONITOR_BREAKER_FAILURE_THRESHOLD"`
	UptimeMonitorBreakerReset     string `mapstructure:"UPTIME_MONITOR_BREAKER_RESET_TIMEOUT"`

	// StatusPollInterval is how often the uptime monitor is probed to refresh
	// service-status snapshots (default "30s").
	StatusPollInterval string `mapstructure:"STATUS_POLL_INTERVAL"`

	// Telemetry (optional). When Kafka brokers are set, the server emits
	// security events to Kafka; when the OTLP endpoint is set, they are also
	// emitted as OTel log records.
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`
	OTLPLogEndpoint       string `mapstructure:"OTLP_LOG_ENDPOINT"`

	// Worker-only: Loki URL for the event worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the event worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("JWT_ISSUER", "medianest-auth")
	v.SetDefault("JWT_AUDIENCE", "medianest-api")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("REMEMBER_TOKEN_TTL", "2160h") // 90d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("ADMIN_USERNAME", "")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("PLEX_BASE_URL", "https://plex.tv")
	v.SetDefault("PLEX_CLIENT_ID", "")
	v.SetDefault("PLEX_PRODUCT", "MediaNest")
	v.SetDefault("MEDIA_BROKER_URL", "")
	v.SetDefault("MEDIA_BROKER_API_KEY", "")
	v.SetDefault("UPTIME_MONITOR_URL", "")
	v.SetDefault("PIN_TTL", "5m")
	v.SetDefault("PIN_POLL_CEILING", 30)
	v.SetDefault("RATE_LIMIT_GENERAL", 100)
	v.SetDefault("RATE_LIMIT_GENERAL_WINDOW", "60s")
	v.SetDefault("RATE_LIMIT_AUTH", 10)
	v.SetDefault("RATE_LIMIT_AUTH_WINDOW", "60s")
	v.SetDefault("RATE_LIMIT_EXTERNAL", 20)
	v.SetDefault("RATE_LIMIT_EXTERNAL_WINDOW", "60s")
	v.SetDefault("BREAKER_FAILURE_THRESHOLD", 5)
	v.SetDefault("BREAKER_RESET_TIMEOUT", "30s")
	v.SetDefault("BREAKER_MAX_RESET_TIMEOUT", "5m")
	v.SetDefault("DEPENDENCY_TIMEOUT", "5s")
	v.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	v.SetDefault("PLEX_TIMEOUT", "")
	v.SetDefault("PLEX_BREAKER_FAILURE_THRESHOLD", 0)
	v.SetDefault("PLEX_BREAKER_RESET_TIMEOUT", "")
	v.SetDefault("MEDIA_BROKER_TIMEOUT", "")
	v.SetDefault("MEDIA_BROKER_BREAKER_FAILURE_THRESHOLD", 0)
	v.SetDefault("MEDIA_BROKER_BREAKER_RESET_TIMEOUT", "")
	v.SetDefault("UPTIME_MONITOR_TIMEOUT", "")
	v.SetDefault("UPTIME_MONITOR_BREAKER_FAILURE_THRESHOLD", 0)
	v.SetDefault("UPTIME_MONITOR_BREAKER_RESET_TIMEOUT", "")
	v.SetDefault("STATUS_POLL_INTERVAL", "30s")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "medianest-events")
	v.SetDefault("OTLP_LOG_ENDPOINT", "")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "medianest-event-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if cfg.PinPollCeiling <= 0 {
		return nil, errors.New("config: PIN_POLL_CEILING must be positive")
	}
	if cfg.BreakerFailureThreshold <= 0 {
		return nil, errors.New("config: BREAKER_FAILURE_THRESHOLD must be positive")
	}
	if cfg.RetryMaxAttempts < 1 {
		return nil, errors.New("config: RETRY_MAX_ATTEMPTS must be at least 1")
	}
	for _, w := range []struct{ name, val string }{
		{"RATE_LIMIT_GENERAL_WINDOW", cfg.RateLimitGeneralWindow},
		{"RATE_LIMIT_AUTH_WINDOW", cfg.RateLimitAuthWindow},
		{"RATE_LIMIT_EXTERNAL_WINDOW", cfg.RateLimitExternalWindow},
	} {
		if d, err := time.ParseDuration(w.val); err != nil || d <= 0 {
			return nil, fmt.Errorf("config: %s must be a positive duration", w.name)
		}
	}

	return &cfg, nil
}

// duration parses s, falling back to def when s is unset or invalid.
func duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// SessionTTLDuration parses SessionTTL. Returns 24h if unset or invalid.
func (c *Config) SessionTTLDuration() time.Duration {
	return duration(c.SessionTTL, 24*time.Hour)
}

// RememberTokenTTLDuration parses RememberTokenTTL. Returns 90 days if unset or invalid.
func (c *Config) RememberTokenTTLDuration() time.Duration {
	return duration(c.RememberTokenTTL, 2160*time.Hour)
}

// PinTTLDuration parses PinTTL. Returns 5m if unset or invalid.
func (c *Config) PinTTLDuration() time.Duration {
	return duration(c.PinTTL, 5*time.Minute)
}

// BreakerResetTimeoutDuration parses BreakerResetTimeout. Returns 30s if unset or invalid.
func (c *Config) BreakerResetTimeoutDuration() time.Duration {
	return duration(c.BreakerResetTimeout, 30*time.Second)
}

// BreakerMaxResetTimeoutDuration parses BreakerMaxResetTimeout. Returns 5m if unset or invalid.
func (c *Config) BreakerMaxResetTimeoutDuration() time.Duration {
	return duration(c.BreakerMaxResetTimeout, 5*time.Minute)
}

// StatusPollIntervalDuration parses StatusPollInterval. Returns 30s if unset or invalid.
func (c *Config) StatusPollIntervalDuration() time.Duration {
	return duration(c.StatusPollInterval, 30*time.Second)
}

// DependencyTimeoutFor returns the call timeout for the named dependency,
// honoring the per-dependency override when set.
func (c *Config) DependencyTimeoutFor(dependency string) time.Duration {
	def := duration(c.DependencyTimeout, 5*time.Second)
	var override string
	switch dependency {
	case "plex":
		override = c.PlexTimeout
	case "mediabroker":
		override = c.MediaBrokerTimeout
	case "uptime":
		override = c.UptimeMonitorTimeout
	}
	if override == "" {
		return def
	}
	return duration(override, def)
}

// BreakerFailureThresholdFor returns the failure threshold for the named
// dependency, honoring the per-dependency override when set.
func (c *Config) BreakerFailureThresholdFor(dependency string) int64 {
	var override int64
	switch dependency {
	case "plex":
		override = c.PlexBreakerThreshold
	case "mediabroker":
		override = c.MediaBrokerBreakerThreshold
	case "uptime":
		override = c.UptimeMonitorBreakerThreshold
	}
	if override > 0 {
		return override
	}
	return c.BreakerFailureThreshold
}

// BreakerResetTimeoutFor returns the breaker cool-down for the named
// dependency, honoring the per-dependency override when set.
func (c *Config) BreakerResetTimeoutFor(dependency string) time.Duration {
	def := c.BreakerResetTimeoutDuration()
	var override string
	switch dependency {
	case "plex":
		override = c.PlexBreakerReset
	case "mediabroker":
		override = c.MediaBrokerBreakerReset
	case "uptime":
		override = c.UptimeMonitorBreakerReset
	}
	if override == "" {
		return def
	}
	return duration(override, def)
}

// RateLimitRules returns the configured rule per endpoint class.
func (c *Config) RateLimitRules() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		EndpointClassGeneral:  {Limit: c.RateLimitGeneral, Window: duration(c.RateLimitGeneralWindow, 60*time.Second)},
		EndpointClassAuth:     {Limit: c.RateLimitAuth, Window: duration(c.RateLimitAuthWindow, 60*time.Second)},
		EndpointClassExternal: {Limit: c.RateLimitExternal, Window: duration(c.RateLimitExternalWindow, 60*time.Second)},
	}
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event emission is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
