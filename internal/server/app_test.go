package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/cryptox"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.ListenAddr = "127.0.0.1:0"
	c.TokenSecret = "topsecret"
	c.BotToken = "123:abc"
	c.ChannelID = -1001234567890
	c.WebhookSecret = "hook-secret"
	c.RecordStore = config.StoreBolt
	c.BoltPath = filepath.Join(t.TempDir(), "data", "files.db")
	c.RateLimit = config.LimiterMemory
	return c
}

func TestNewApp_TelegramWithBolt(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(t), logging.NewDiscard())
	require.NoError(t, err)

	assert.NotNil(t, app.server)
	assert.Len(t, app.closers, 1)
	app.close()
	assert.Empty(t, app.closers)
}

func TestNewApp_WithoutOptionalParts(t *testing.T) {
	c := testConfig(t)
	c.RecordStore = config.StoreNone
	c.RateLimit = config.LimiterNone
	c.CacheTTL = 0

	app, err := newApp(context.Background(), c, logging.NewDiscard())
	require.NoError(t, err)
	assert.Empty(t, app.closers)
}

func TestNewApp_EmptySecret(t *testing.T) {
	c := testConfig(t)
	c.TokenSecret = ""

	_, err := newApp(context.Background(), c, logging.NewDiscard())
	assert.ErrorIs(t, err, cryptox.ErrEmptySecret)
}

func TestNewApp_UnknownBackend(t *testing.T) {
	c := testConfig(t)
	c.Backend = "carrier-pigeon"

	_, err := newApp(context.Background(), c, logging.NewDiscard())
	assert.ErrorContains(t, err, "unknown backend")
}

func TestNewApp_RedisUnavailableReleasesStore(t *testing.T) {
	c := testConfig(t)
	c.RateLimit = config.LimiterRedis
	c.RedisAddr = "127.0.0.1:1"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := newApp(ctx, c, logging.NewDiscard())
	require.ErrorContains(t, err, "redis init error")

	// The bolt file lock is gone once the failed app released it.
	again, err := newApp(context.Background(), func() *config.Config {
		c.RateLimit = config.LimiterNone
		return c
	}(), logging.NewDiscard())
	require.NoError(t, err)
	again.close()
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := newApp(context.Background(), testConfig(t), logging.NewDiscard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
		assert.Empty(t, app.closers)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}
