// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds server configuration.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string // "json" or "text"

	// DatabaseURL selects Postgres. Empty runs in lite mode on SQLite.
	DatabaseURL string
	SQLitePath  string

	// RedisAddr enables the shared completion cache when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	CompletionTTL       time.Duration
	CompletionPredicate string
	BypassEmails        []string

	// RoutesFile overrides the built-in route table.
	RoutesFile    string
	SignalTimeout time.Duration

	// SessionSecret signs session and impersonation tokens. Empty generates
	// an ephemeral key set, so tokens do not survive a restart.
	SessionSecret string
	SecureCookies bool

	RateLimitRPS   float64
	RateLimitBurst int

	OTelEnabled  bool
	OTelEndpoint string
	OTelInsecure bool
}

// Load loads configuration from environment variables, applying development
// defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Port:                getenv("PORT", "8080"),
		LogLevel:            strings.ToUpper(getenv("LOG_LEVEL", "INFO")),
		LogFormat:           strings.ToLower(getenv("LOG_FORMAT", "json")),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		SQLitePath:          getenv("SQLITE_PATH", "navguard.db"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		CompletionPredicate: os.Getenv("COMPLETION_PREDICATE"),
		BypassEmails:        splitList(os.Getenv("BYPASS_EMAILS")),
		RoutesFile:          os.Getenv("ROUTES_FILE"),
		SessionSecret:       os.Getenv("SESSION_SECRET"),
		SecureCookies:       os.Getenv("SECURE_COOKIES") == "true",
		OTelEnabled:         os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:        getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelInsecure:        os.Getenv("OTEL_INSECURE") == "true",
	}

	var errs []error
	cfg.RedisDB = parseInt("REDIS_DB", 0, &errs)
	cfg.CompletionTTL = parseDuration("COMPLETION_TTL", 5*time.Minute, &errs)
	cfg.SignalTimeout = parseDuration("SIGNAL_TIMEOUT", 3*time.Second, &errs)
	cfg.RateLimitRPS = parseFloat("RATE_LIMIT_RPS", 20, &errs)
	cfg.RateLimitBurst = parseInt("RATE_LIMIT_BURST", 40, &errs)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.CompletionTTL <= 0 {
		return errors.New("COMPLETION_TTL must be positive")
	}
	if c.SignalTimeout <= 0 {
		return errors.New("SIGNAL_TIMEOUT must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return nil
}

// LiteMode reports whether the service runs on SQLite.
func (c *Config) LiteMode() bool { return c.DatabaseURL == "" }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseDuration(key string, def time.Duration, errs *[]error) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}

func parseInt(key string, def int, errs *[]error) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func parseFloat(key string, def float64, errs *[]error) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return f
}
