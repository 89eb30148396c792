package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-long-test-secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 5*time.Second, cfg.Podium.CacheTTL)
	assert.Equal(t, 5*time.Second, cfg.Discord.Timeout)
	assert.Equal(t, "falls/+/events", cfg.MQTT.Topic)
	assert.Equal(t, byte(1), cfg.MQTT.QoS)
	assert.Equal(t, "falls:events:stream", cfg.Stream.Name)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret-value")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "falls_test")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("PODIUM_CACHE_TTL", "30s")
	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.example/hook")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "falls_test", cfg.Database.Database)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Podium.CacheTTL)
	assert.Equal(t, "https://discord.example/hook", cfg.Discord.WebhookURL)
}

func TestLoad_RejectsMissingOrInsecureSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load("")
	require.Error(t, err)

	t.Setenv("JWT_SECRET", InsecureDefaultJWTSecret)
	_, err = Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure")
}

func TestRead_SkipsValidation(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	cfg, err := Read("")
	require.NoError(t, err)
	assert.Equal(t, "falls", cfg.Database.Database)
}

func TestLoad_File(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	dir := t.TempDir()
	path := filepath.Join(dir, "falld.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":9090"
auth:
  jwt_secret: from-file-secret
worker:
  pool_size: 3
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "from-file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, 3, cfg.Worker.PoolSize)
}
