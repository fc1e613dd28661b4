package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":8080", cfg.Server.Addr)
		assert.Equal(t, 24*time.Hour, cfg.Distribution.TTL)
		assert.Equal(t, "cardgate", cfg.Delivery.DeepLinkScheme)
		assert.Equal(t, "cardgate.audit", cfg.Kafka.AuditTopic)
		assert.Empty(t, cfg.Kafka.Brokers)
		assert.False(t, cfg.IsProduction())
		assert.Empty(t, cfg.Tracing.Endpoint)
		assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("CARDGATE_ADDR", ":9000")
		t.Setenv("DISTRIBUTION_TTL", "2h")
		t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,k1:9092,")
		t.Setenv("CARD_SIMULATED_READERS", "r1=3B;r2=")

		cfg, err := FromEnv()
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Server.Addr)
		assert.Equal(t, 2*time.Hour, cfg.Distribution.TTL)
		assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
		assert.Equal(t, []string{"r1=3B", "r2="}, cfg.Card.SimulatedReaders)
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		t.Setenv("DISTRIBUTION_TTL", "0s")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("rejects sample ratio above one", func(t *testing.T) {
		t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "1.5")
		_, err := FromEnv()
		require.Error(t, err)
	})

	t.Run("production requires signing key", func(t *testing.T) {
		t.Setenv("CARDGATE_ENV", "production")
		_, err := FromEnv()
		require.Error(t, err)

		t.Setenv("JWT_SIGNING_KEY", "a-real-key")
		_, err = FromEnv()
		require.NoError(t, err)
	})
}
