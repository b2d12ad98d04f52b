package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"CANOPY_ADDR", "CANOPY_LOG_LEVEL", "CANOPY_LEDGER_URL", "CANOPY_LEDGER_TIMEOUT",
		"CANOPY_DATA_DIR", "CANOPY_REDIS_URL", "CANOPY_POSTGRES_DSN", "CANOPY_KAFKA_BROKERS",
		"CANOPY_JWT_SIGNING_KEY", "CANOPY_SIGNER_KEY", "CANOPY_POLL_INTERVAL",
		"CANOPY_RATELIMIT_DISABLED",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.LedgerURL)
	assert.Equal(t, 10*time.Second, cfg.LedgerTimeout)
	assert.Empty(t, cfg.DataDir)
	assert.Empty(t, cfg.RedisURL)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Nil(t, cfg.KafkaBrokers)
	assert.NotEmpty(t, cfg.JWTSigningKey)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)
	assert.False(t, cfg.RateLimitDisabled)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("CANOPY_ADDR", ":9999")
	t.Setenv("CANOPY_LOG_LEVEL", "debug")
	t.Setenv("CANOPY_LEDGER_URL", "https://ledger.example.com")
	t.Setenv("CANOPY_LEDGER_TIMEOUT", "2s")
	t.Setenv("CANOPY_KAFKA_BROKERS", "broker-1:9092, broker-2:9092, ,")
	t.Setenv("CANOPY_POLL_INTERVAL", "5s")
	t.Setenv("CANOPY_RATELIMIT_DISABLED", "true")

	cfg := FromEnv()

	assert.Equal(t, ":9999", cfg.Addr)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "https://ledger.example.com", cfg.LedgerURL)
	assert.Equal(t, 2*time.Second, cfg.LedgerTimeout)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.True(t, cfg.RateLimitDisabled)
}

func TestEnvDurationRejectsGarbage(t *testing.T) {
	t.Setenv("CANOPY_LEDGER_TIMEOUT", "soon")
	cfg := FromEnv()
	assert.Equal(t, 10*time.Second, cfg.LedgerTimeout)
}

func TestEnvBool(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"1", true},
		{"true", true},
		{"TRUE", true},
		{"yes", true},
		{"0", false},
		{"false", false},
		{"", false},
		{"maybe", false},
	}
	for _, tt := range tests {
		t.Run("value "+tt.value, func(t *testing.T) {
			t.Setenv("CANOPY_RATELIMIT_DISABLED", tt.value)
			assert.Equal(t, tt.want, envBool("CANOPY_RATELIMIT_DISABLED"))
		})
	}
}

func TestRedisConfigCarriesURL(t *testing.T) {
	cfg := Config{RedisURL: "redis://localhost:6379/0"}
	rc := cfg.RedisConfig()
	assert.Equal(t, cfg.RedisURL, rc.URL)
	assert.Positive(t, rc.PoolSize)
	assert.Positive(t, rc.DialTimeout)
}
