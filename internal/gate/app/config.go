package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/eventgate/internal/gate/ratelimit"
	"github.com/aussiebroadwan/eventgate/internal/gate/service"
	"github.com/aussiebroadwan/eventgate/pkg/jwtx"
)

var (
	ErrMissingSecrets = errors.New("JWT_SECRET and JWT_REFRESH_SECRET must both be set")
	ErrSharedSecrets  = errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
)

type Config struct {
	JWTSecret           string        // Required: access token signing secret
	JWTExpiresIn        time.Duration // Access token lifetime (default: 15m)
	JWTRefreshSecret    string        // Required: refresh token signing secret, distinct from JWTSecret
	JWTRefreshExpiresIn time.Duration // Refresh token lifetime (default: 7 days)
	JWTIssuer           string        // iss claim (default: eventgate)

	SessionTimeout time.Duration // Inactivity window (default: 30m)

	DatabaseURL  string // Optional: postgres DSN. When empty the gate uses SQLite
	DatabaseFile string // Optional: path to SQLite database file (default: ./gate.db)
	RedisURL     string // Optional: shared rate counters. When empty counters live in memory

	DisableRateLimit bool // Bypass rate and speed limiting entirely
	TrustProxy       bool // Take the client IP from X-Forwarded-For / X-Real-IP
	RateRules        map[ratelimit.Class]ratelimit.Rule
	SpeedRule        ratelimit.SpeedRule

	DirectoryTimeout  time.Duration // Per-request user lookup budget (default: 2s)
	ActivityQueueSize int           // lastActivity write-back queue (default: 1024)
	SweepInterval     time.Duration // In-memory rate bucket eviction (default: 1m)

	PepperFile        string // Path to file containing pepper for password hashing (default: ./pepper)
	BootstrapEmail    string // Optional: first SUPER_ADMIN, created when the directory is empty
	BootstrapPassword string

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	MetricsPort         int           // Internal listener for /metrics and /swagger/ (default: 9090, 0 disables)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)
}

func LoadConfig() Config {
	return Config{
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTExpiresIn:        getEnvDurationOrDefault("JWT_EXPIRES_IN", jwtx.DefaultAccessTokenTTL),
		JWTRefreshSecret:    os.Getenv("JWT_REFRESH_SECRET"),
		JWTRefreshExpiresIn: getEnvDurationOrDefault("JWT_REFRESH_EXPIRES_IN", jwtx.DefaultRefreshTokenTTL),
		JWTIssuer:           getEnvOrDefault("JWT_ISSUER", "eventgate"),

		SessionTimeout: time.Duration(getEnvIntOrDefault("SESSION_TIMEOUT_MINUTES", 30)) * time.Minute,

		DatabaseURL:  os.Getenv("DATABASE_URL"),
		DatabaseFile: getEnvOrDefault("GATE_DATABASE_FILE", "gate.db"),
		RedisURL:     os.Getenv("REDIS_URL"),

		DisableRateLimit: getEnvBoolOrDefault("DISABLE_RATE_LIMIT", false),
		TrustProxy:       getEnvBoolOrDefault("TRUST_PROXY", false),
		RateRules:        ratelimit.RulesFromEnv(),
		SpeedRule:        ratelimit.SpeedRuleFromEnv(),

		DirectoryTimeout:  getEnvDurationOrDefault("DIRECTORY_TIMEOUT", service.DefaultLookupTimeout),
		ActivityQueueSize: getEnvIntOrDefault("ACTIVITY_QUEUE_SIZE", 1024),
		SweepInterval:     getEnvDurationOrDefault("SWEEP_INTERVAL", time.Minute),

		PepperFile:        getEnvOrDefault("GATE_PEPPER_FILE", "pepper"),
		BootstrapEmail:    os.Getenv("GATE_BOOTSTRAP_EMAIL"),
		BootstrapPassword: os.Getenv("GATE_BOOTSTRAP_PASSWORD"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		MetricsPort:         getEnvIntOrDefault("METRICS_PORT", 9090),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
	}
}

// Validate rejects configurations the gate cannot run safely with.
func (c Config) Validate() error {
	if c.JWTSecret == "" || c.JWTRefreshSecret == "" {
		return ErrMissingSecrets
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return ErrSharedSecrets
	}
	if c.JWTRefreshExpiresIn <= c.JWTExpiresIn {
		return fmt.Errorf("JWT_REFRESH_EXPIRES_IN (%s) must exceed JWT_EXPIRES_IN (%s)", c.JWTRefreshExpiresIn, c.JWTExpiresIn)
	}
	if c.SessionTimeout <= 0 {
		return fmt.Errorf("SESSION_TIMEOUT_MINUTES must be positive, got %s", c.SessionTimeout)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		return fmt.Errorf("METRICS_PORT out of range: %d", c.MetricsPort)
	}
	if c.MetricsPort == c.Port {
		return fmt.Errorf("METRICS_PORT must differ from PORT (%d)", c.Port)
	}
	if (c.BootstrapEmail == "") != (c.BootstrapPassword == "") {
		return errors.New("GATE_BOOTSTRAP_EMAIL and GATE_BOOTSTRAP_PASSWORD must be set together")
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
