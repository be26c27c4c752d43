package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/unwind/pkg/cache"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage/postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      postgres.ConnectionConfig
	Redis         RedisConfig
	Cache         cache.Config
	Auth          AuthConfig
	Analytics     AnalyticsConfig
	RateLimit     RateLimitConfig
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
	CORSOrigins     []string
}

// Addr returns host:port
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// RedisConfig configures the optional L2 dashboard cache. An empty URL
// disables Redis.
type RedisConfig struct {
	URL string
}

// AuthConfig holds token and password settings
type AuthConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
}

// AnalyticsConfig holds reference-date and policy settings
type AnalyticsConfig struct {
	// Timezone names the IANA zone that defines "today"
	Timezone   string
	PolicyFile string
	// HTTP request budget for computing one dashboard
	ComputeTimeout time.Duration

	location *time.Location
}

// Location returns the loaded reference timezone (UTC until Validate runs)
func (a AnalyticsConfig) Location() *time.Location {
	if a.location == nil {
		return time.UTC
	}
	return a.location
}

// RateLimitConfig configures the per-IP token bucket on auth endpoints
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from UNWIND_* environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         RedisConfig{URL: getEnv("UNWIND_REDIS_URL", "")},
		Cache:         loadCacheConfig(),
		Auth:          loadAuthConfig(),
		Analytics:     loadAnalyticsConfig(),
		RateLimit:     loadRateLimitConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("UNWIND_HOST", "0.0.0.0"),
		Port:            getEnv("UNWIND_PORT", "8080"),
		ReadTimeout:     getEnvDuration("UNWIND_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("UNWIND_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("UNWIND_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("UNWIND_SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:     getEnvList("UNWIND_CORS_ORIGINS", []string{"*"}),
	}
}

func loadDatabaseConfig() postgres.ConnectionConfig {
	return postgres.ConnectionConfig{
		PrimaryURL:  getEnv("UNWIND_DATABASE_URL", ""),
		ReplicaURLs: postgres.ParseReplicaURLs(getEnv("UNWIND_DATABASE_REPLICA_URLS", "")),
		MaxConns:    getEnvInt("UNWIND_DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt("UNWIND_DATABASE_MIN_CONNS", 2),
		Timeout:     getEnvDuration("UNWIND_DATABASE_TIMEOUT", 5*time.Second),
		MaxLifetime: getEnvDuration("UNWIND_DATABASE_MAX_LIFETIME", time.Hour),
		MaxIdleTime: getEnvDuration("UNWIND_DATABASE_MAX_IDLE_TIME", 10*time.Minute),
	}
}

func loadCacheConfig() cache.Config {
	cfg := cache.DefaultConfig()
	if size := getEnvInt("UNWIND_CACHE_L1_SIZE", 0); size > 0 {
		cfg.L1Size = size
	}
	cfg.L1TTL = getEnvDuration("UNWIND_CACHE_L1_TTL", cfg.L1TTL)
	cfg.L1SharedTTL = getEnvDuration("UNWIND_CACHE_L1_SHARED_TTL", cfg.L1SharedTTL)
	cfg.L2TTL = getEnvDuration("UNWIND_CACHE_L2_TTL", cfg.L2TTL)
	cfg.L2KeyPrefix = getEnv("UNWIND_CACHE_KEY_PREFIX", cfg.L2KeyPrefix)
	return cfg
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		AccessSecret:  getEnv("UNWIND_JWT_ACCESS_SECRET", ""),
		RefreshSecret: getEnv("UNWIND_JWT_REFRESH_SECRET", ""),
		AccessTTL:     getEnvDuration("UNWIND_JWT_ACCESS_TTL", 15*time.Minute),
		RefreshTTL:    getEnvDuration("UNWIND_JWT_REFRESH_TTL", 7*24*time.Hour),
		BcryptCost:    getEnvInt("UNWIND_BCRYPT_COST", 10),
	}
}

func loadAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		Timezone:       getEnv("UNWIND_TIMEZONE", "UTC"),
		PolicyFile:     getEnv("UNWIND_POLICY_FILE", ""),
		ComputeTimeout: getEnvDuration("UNWIND_ANALYTICS_TIMEOUT", 10*time.Second),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:           getEnvBool("UNWIND_RATE_LIMIT_ENABLED", true),
		RequestsPerMinute: getEnvInt("UNWIND_RATE_LIMIT_RPM", 20),
		Burst:             getEnvInt("UNWIND_RATE_LIMIT_BURST", 5),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("UNWIND_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("UNWIND_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("UNWIND_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("UNWIND_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("UNWIND_OTEL_SERVICE_NAME", "unwind"),
		OTelServiceVersion: getEnv("UNWIND_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("UNWIND_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("UNWIND_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks the configuration and loads the reference timezone
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("server port is required")
	}

	if c.Database.PrimaryURL == "" {
		return errors.New("UNWIND_DATABASE_URL is required")
	}
	if c.Database.MaxConns < 1 {
		return errors.New("database max connections must be positive")
	}

	if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
		return errors.New("UNWIND_JWT_ACCESS_SECRET and UNWIND_JWT_REFRESH_SECRET are required")
	}
	if c.Auth.AccessSecret == c.Auth.RefreshSecret {
		return errors.New("JWT access and refresh secrets must be different")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		return errors.New("JWT lifetimes must be positive")
	}

	loc, err := time.LoadLocation(c.Analytics.Timezone)
	if err != nil {
		return fmt.Errorf("invalid UNWIND_TIMEZONE %q: %w", c.Analytics.Timezone, err)
	}
	c.Analytics.location = loc

	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerMinute < 1 || c.RateLimit.Burst < 1) {
		return errors.New("rate limit requests per minute and burst must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvList splits a comma-separated variable, dropping empty items
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
