// Package config loads macscope's runtime configuration from the
// environment (optionally via a .env file), into one explicit struct —
// no global singletons, per the orchestration code's preference for
// passing dependencies down from main.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the monitor reads at startup.
type Config struct {
	Host     string
	Port     string
	LogLevel string

	WorkerPoolSize int
	AuditLogPath   string

	JWTSecret       string
	AdminSecretHash string

	RateLimitPerSecond float64
	RateLimitBurst     int
	DefaultRateLimit   int
}

// Load reads a .env file if present (missing is not an error — godotenv's
// usual treatment in a container where env vars are injected directly),
// then fills Config from the environment with documented defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnv("PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WorkerPoolSize: getEnvInt("WORKER_POOL_SIZE", 2),
		AuditLogPath:   getEnv("AUDIT_LOG_PATH", ""),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		AdminSecretHash: getEnv("ADMIN_SECRET_HASH", ""),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 5),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 10),
		DefaultRateLimit:   getEnvInt("DEFAULT_RATE_LIMIT", 1),
	}

	return cfg, nil
}

// RequireAuthSecrets validates the fields only `monitor serve` needs — a
// scan-once run never issues or checks a bearer token, so Load itself
// leaves them optional.
func (c *Config) RequireAuthSecrets() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("config: JWT_SECRET is required")
	}
	if c.AdminSecretHash == "" {
		return fmt.Errorf("config: ADMIN_SECRET_HASH is required (see `monitor hash-secret`)")
	}
	return nil
}

// Addr is the listen address built from Host and Port.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// ShutdownTimeout is how long graceful shutdown waits before forcing close.
const ShutdownTimeout = 10 * time.Second
