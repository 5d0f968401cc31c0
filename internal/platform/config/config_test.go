package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "c2VjcmV0LXNlY3JldC1zZWNyZXQtc2VjcmV0LXNlY3JldA==")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.Server.Addr)
	assert.Equal(t, 15*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, "accessToken", cfg.Token.CookieName)
	assert.Equal(t, 120*time.Second, cfg.OTP.TTL)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, 6, cfg.OTP.CodeLength)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Gateway.TrustedProxies)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("JWT_ACCESS_TTL", "PT30M")
	t.Setenv("JWT_REFRESH_TTL", "14d")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("OTP_MAX_ATTEMPTS", "5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("GATEWAY_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Token.AccessTTL)
	assert.Equal(t, 14*24*time.Hour, cfg.Token.RefreshTTL)
	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.Gateway.TrustedProxies)
}

func TestFromEnvFailsWithoutSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "  ")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestFromEnvCollectsAllErrors(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("OTP_MAX_ATTEMPTS", "many")
	t.Setenv("JWT_ACCESS_TTL", "soon")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "OTP_MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "JWT_ACCESS_TTL")
}
