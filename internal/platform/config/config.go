// Package config builds process configuration from the environment so main
// stays lean. Optional backends (redis, postgres, kafka, ledger) stay nil when
// their settings are absent; the process degrades to in-memory equivalents.
package config

import (
	"log/slog"
	"os"
	"strings"
	"time"

	strutil "canopy/pkg/platform/strings"
)

// Config captures everything the server process needs at startup.
type Config struct {
	Addr     string
	LogLevel slog.Level

	// Ledger is the external system of record. An empty URL means the ledger
	// is unconfigured and every document stays local-only.
	LedgerURL     string
	LedgerTimeout time.Duration

	// DataDir is the directory for the durable key-value substrate. Empty
	// selects in-memory mode.
	DataDir string

	// RedisURL selects the redis-backed record store when set.
	RedisURL string

	// PostgresDSN selects the postgres audit store when set.
	PostgresDSN string

	// KafkaBrokers enables audit and change-event publishing when non-empty.
	KafkaBrokers []string

	// JWTSigningKey signs and validates actor bearer tokens.
	JWTSigningKey string

	// SignerKeySeed seeds the development attestation signer (hex).
	SignerKeySeed string

	// PollInterval is the sync poller period.
	PollInterval time.Duration

	// RateLimitDisabled turns off per-caller request budgets. Load tests and
	// local development set it; production keeps limiting on.
	RateLimitDisabled bool
}

// Redis holds connection tuning for the redis client.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisConfig derives the redis settings from the top-level config.
func (c Config) RedisConfig() Redis {
	return Redis{
		URL:          c.RedisURL,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// FromEnv builds a Config from CANOPY_* environment variables.
func FromEnv() Config {
	cfg := Config{
		Addr:              envOr("CANOPY_ADDR", ":8080"),
		LogLevel:          parseLevel(os.Getenv("CANOPY_LOG_LEVEL")),
		LedgerURL:         os.Getenv("CANOPY_LEDGER_URL"),
		LedgerTimeout:     envDuration("CANOPY_LEDGER_TIMEOUT", 10*time.Second),
		DataDir:           os.Getenv("CANOPY_DATA_DIR"),
		RedisURL:          os.Getenv("CANOPY_REDIS_URL"),
		PostgresDSN:       os.Getenv("CANOPY_POSTGRES_DSN"),
		JWTSigningKey:     envOr("CANOPY_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		SignerKeySeed:     envOr("CANOPY_SIGNER_KEY", "canopy-dev-signer-seed"),
		PollInterval:      envDuration("CANOPY_POLL_INTERVAL", 30*time.Second),
		RateLimitDisabled: envBool("CANOPY_RATELIMIT_DISABLED"),
	}

	if brokers := os.Getenv("CANOPY_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strutil.DedupeAndTrim(strings.Split(brokers, ","))
	}

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func parseLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
