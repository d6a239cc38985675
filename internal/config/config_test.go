package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, BackendPostgres, cfg.StoreBackend)
	require.Equal(t, []string{"activity_events"}, cfg.ConsumerTopics)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.NoError(t, cfg.Validate())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("LOCK_TTL", "5s")
	t.Setenv("DLQ_MAX_RETRIES", "not-a-number")
	t.Setenv("TIME_ZONE", "Europe/Berlin")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg := Load()
	require.Equal(t, BackendMemory, cfg.StoreBackend)
	require.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	require.Equal(t, 3, cfg.RedisDB)
	require.Equal(t, 5*time.Second, cfg.LockTTL)
	require.Equal(t, 5, cfg.DLQMaxRetries)
	require.InDelta(t, 2.5, cfg.RateLimitRPS, 0.0001)
	require.Equal(t, 40, cfg.RateLimitBurst)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Europe/Berlin", loc.String())
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "sqlite")
	require.Error(t, Load().Validate())

	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("TIME_ZONE", "Mars/Olympus")
	_, err := Load().Location()
	require.Error(t, err)
}

func TestValidateRejectsNegativeRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "-1")
	require.ErrorContains(t, Load().Validate(), "RATE_LIMIT_RPS")
}
