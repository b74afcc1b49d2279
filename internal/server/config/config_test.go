package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func withDotenv(t *testing.T, path string) {
	t.Helper()
	orig := dotenvPath
	dotenvPath = path
	t.Cleanup(func() { dotenvPath = orig })
}

func validConfig() *Config {
	c := &Config{}
	c.LoadDefaults()
	c.BotToken = "123:abc"
	c.ChannelID = -100123
	c.TokenSecret = "topsecret"
	return c
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":8080", c.ListenAddr)
	assert.Equal(t, "/endpoint", c.WebhookPath)
	assert.Equal(t, BackendTelegram, c.Backend)
	assert.Equal(t, "https://api.telegram.org", c.TelegramAPIBase)
	assert.Equal(t, StoreNone, c.RecordStore)
	assert.Equal(t, LimiterNone, c.RateLimit)
	assert.Equal(t, time.Hour, c.CacheTTL)
	assert.Equal(t, int64(4<<30), c.MaxUploadSize)
	assert.Equal(t, int64(2<<30), c.MaxStreamSize)
	assert.False(t, c.LegacyStatus)
	assert.Empty(t, c.TokenSecret)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing secret", func(c *Config) { c.TokenSecret = "" }, "token secret is required"},
		{"missing bot token", func(c *Config) { c.BotToken = "" }, "bot token is required"},
		{"missing channel", func(c *Config) { c.ChannelID = 0 }, "channel id is required"},
		{"s3 backend without bot", func(c *Config) { c.Backend = BackendS3; c.BotToken = "" }, ""},
		{"unknown backend", func(c *Config) { c.Backend = "ftp" }, `unknown backend "ftp"`},
		{"root webhook path", func(c *Config) { c.WebhookPath = "/" }, "webhook path"},
		{"unknown store", func(c *Config) { c.RecordStore = "mongo" }, `unknown record store "mongo"`},
		{"bolt without path", func(c *Config) { c.RecordStore = StoreBolt; c.BoltPath = "" }, "bolt path is required"},
		{"limiter without window", func(c *Config) { c.RateLimit = LimiterMemory; c.RateLimitWindow = 0 }, "positive request count"},
		{"unknown limiter", func(c *Config) { c.RateLimit = "token-bucket" }, "unknown rate limiter"},
		{"zero ceiling", func(c *Config) { c.MaxStreamSize = 0 }, "size ceilings"},
		{"negative range chunk", func(c *Config) { c.RangeChunkSize = -1 }, "range chunk size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()

	dotenv := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("BOT_TOKEN=from-dotenv\nSIA_SECRET=dotenv-secret\nBOT_CHANNEL=-1001\nBASE_URL=https://dotenv.example\n"), 0o600))
	withDotenv(t, dotenv)

	file := filepath.Join(dir, "conf.yaml")
	require.NoError(t, os.WriteFile(file, []byte("base_url: https://file.example\ncache_ttl: 5m\nrecord_store: bolt\n"), 0o600))

	env := envMap(map[string]string{
		"SIA_SECRET":    "env-secret",
		"LEGACY_STATUS": "true",
	})

	cfg, err := Load([]string{"-c", file, "-a", ":9999"}, env)
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.BotToken)
	assert.Equal(t, "env-secret", cfg.TokenSecret, "environment wins over .env")
	assert.Equal(t, int64(-1001), cfg.ChannelID)
	assert.True(t, cfg.LegacyStatus)
	assert.Equal(t, "https://file.example", cfg.BaseURL, "file wins over env")
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, StoreBolt, cfg.RecordStore)
	assert.True(t, cfg.RecordStoreEnabled())
	assert.Equal(t, ":9999", cfg.ListenAddr, "flags win over everything")
	assert.Equal(t, "/endpoint", cfg.WebhookPath, "untouched keys keep defaults")
}

func TestLoad_MissingDotenvIsIgnored(t *testing.T) {
	withDotenv(t, filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := Load([]string{"-t", "1:x", "-k", "s", "-n", "-100"}, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "1:x", cfg.BotToken)
	assert.Equal(t, int64(-100), cfg.ChannelID)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	withDotenv(t, "")

	_, err := Load(nil, envMap(map[string]string{"BOT_OWNER": "someone", "CACHE_TTL": "forever"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOT_OWNER")
	assert.Contains(t, err.Error(), "CACHE_TTL")
}

func TestLoad_ValidationFailure(t *testing.T) {
	withDotenv(t, "")

	_, err := Load(nil, envMap(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token secret is required")
}
