package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "Mazungumzo AI", cfg.App.Name)
	assert.Equal(t, "1.0.0", cfg.App.Version)
	assert.InDelta(t, 0.5, cfg.Crisis.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 50, cfg.Session.MaxHistory)
	assert.Equal(t, time.Hour, cfg.Session.CleanupInterval)
	assert.Equal(t, 24*time.Hour, cfg.Session.InactivityTTL)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, 6, cfg.AI.HistoryWindow)
	assert.Equal(t, "en", cfg.I18n.DefaultLanguage)
	assert.Equal(t, []string{"en", "sw"}, cfg.I18n.Languages)
	assert.False(t, cfg.WhatsApp.Enabled)
}

func TestLoadConfigFromFile(t *testing.T) {
	path := writeConfigFile(t, `
app:
  environment: production
  version: 2.5.0
server:
  port: 9000
crisis:
  confidence_threshold: 0.7
storage:
  type: file
whatsapp:
  verify_token: file-token
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.App.Environment)
	assert.Equal(t, "2.5.0", cfg.App.Version)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.InDelta(t, 0.7, cfg.Crisis.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "file", cfg.Storage.Type)
	assert.Equal(t, "file-token", cfg.WhatsApp.VerifyToken)

	// Keys the file leaves out keep their defaults.
	assert.Equal(t, "Mazungumzo AI", cfg.App.Name)
	assert.Equal(t, 10*time.Minute, cfg.Cache.TTL)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9001")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CRISIS_CONFIDENCE_THRESHOLD", "0.8")
	t.Setenv("WHATSAPP_VERIFY_TOKEN", "env-token")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, "production", cfg.App.Environment)
	assert.InDelta(t, 0.8, cfg.Crisis.ConfidenceThreshold, 1e-9)
	assert.Equal(t, "env-token", cfg.WhatsApp.VerifyToken)
}

func TestLoadConfigAssemblesRedisAddr(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis.internal")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6379", cfg.Storage.Redis.Addr)

	t.Setenv("REDIS_PORT", "6380")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "redis.internal:6380", cfg.Storage.Redis.Addr)
}

func TestLoadConfigProvidersFromEnv(t *testing.T) {
	t.Setenv("CEREBRAS_API_KEY", "ck-test")
	t.Setenv("OPENROUTER_API_KEY", "or-test")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Len(t, cfg.AI.Providers, 2)

	assert.Equal(t, "cerebras", cfg.AI.Providers[0].Name)
	assert.Equal(t, "https://api.cerebras.ai/v1", cfg.AI.Providers[0].BaseURL)
	assert.Equal(t, "qwen-3-32b", cfg.AI.Providers[0].Model)
	assert.Equal(t, "ck-test", cfg.AI.Providers[0].APIKey)

	assert.Equal(t, "openrouter", cfg.AI.Providers[1].Name)
	assert.Equal(t, "or-test", cfg.AI.Providers[1].APIKey)
	assert.NotEmpty(t, cfg.AI.Providers[1].Headers["HTTP-Referer"])
}

func TestLoadConfigFileProvidersWinOverEnv(t *testing.T) {
	t.Setenv("CEREBRAS_API_KEY", "ck-test")

	path := writeConfigFile(t, `
ai:
  providers:
    - name: custom
      base_url: http://localhost:9999/v1
      model: test-model
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.AI.Providers, 1)
	assert.Equal(t, "custom", cfg.AI.Providers[0].Name)
}

func TestLoadConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "negative port",
			yaml:    "server:\n  port: -1\n",
			wantErr: "invalid server port",
		},
		{
			name:    "threshold out of range",
			yaml:    "crisis:\n  confidence_threshold: 1.5\n",
			wantErr: "crisis confidence threshold",
		},
		{
			name:    "zero history",
			yaml:    "session:\n  max_history: 0\n",
			wantErr: "max_history must be positive",
		},
		{
			name:    "unknown storage type",
			yaml:    "storage:\n  type: cassandra\n",
			wantErr: "unknown storage type",
		},
		{
			name:    "incomplete provider",
			yaml:    "ai:\n  providers:\n    - name: cerebras\n      model: qwen-3-32b\n",
			wantErr: "needs name, base_url and model",
		},
		{
			name:    "whatsapp without credentials",
			yaml:    "whatsapp:\n  enabled: true\n",
			wantErr: "twilio credentials are incomplete",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tc.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}
