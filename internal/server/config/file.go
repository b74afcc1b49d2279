package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/tgfilestream/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of the configuration. Durations accept
// both "90s" style strings and integer nanoseconds.
type fileConfig struct {
	ListenAddr string `json:"listen_addr" yaml:"listen_addr"`
	BaseURL    string `json:"base_url" yaml:"base_url"`
	LogLevel   string `json:"log_level" yaml:"log_level"`

	BotToken      string `json:"bot_token" yaml:"bot_token"`
	BotName       string `json:"bot_name" yaml:"bot_name"`
	BotOwner      int64  `json:"bot_owner" yaml:"bot_owner"`
	OwnerUsername string `json:"owner_username" yaml:"owner_username"`
	PublicBot     bool   `json:"public_bot" yaml:"public_bot"`
	ChannelID     int64  `json:"channel_id" yaml:"channel_id"`
	WebhookPath   string `json:"webhook_path" yaml:"webhook_path"`
	WebhookSecret string `json:"webhook_secret" yaml:"webhook_secret"`
	TokenSecret   string `json:"token_secret" yaml:"token_secret"`

	Backend         string         `json:"backend" yaml:"backend"`
	TelegramAPIBase string         `json:"telegram_api_base" yaml:"telegram_api_base"`
	HTTPTimeout     timex.Duration `json:"http_timeout" yaml:"http_timeout"`

	RecordStore string `json:"record_store" yaml:"record_store"`
	DatabaseDSN string `json:"database_dsn" yaml:"database_dsn"`
	BoltPath    string `json:"bolt_path" yaml:"bolt_path"`

	CacheTTL timex.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	RateLimit         string         `json:"rate_limit" yaml:"rate_limit"`
	RateLimitRequests int            `json:"rate_limit_requests" yaml:"rate_limit_requests"`
	RateLimitWindow   timex.Duration `json:"rate_limit_window" yaml:"rate_limit_window"`
	RedisAddr         string         `json:"redis_addr" yaml:"redis_addr"`

	MaxUploadSize  int64 `json:"max_upload_size" yaml:"max_upload_size"`
	MaxStreamSize  int64 `json:"max_stream_size" yaml:"max_stream_size"`
	RangeChunkSize int64 `json:"range_chunk_size" yaml:"range_chunk_size"`
	LegacyStatus   bool  `json:"legacy_status" yaml:"legacy_status"`

	S3RootUser     string `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword string `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket       string `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region       string `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
	S3Prefix       string `json:"s3_prefix" yaml:"s3_prefix"`
}

// parseFile overlays the file at path onto c. Keys missing from the file
// keep their current value. Files ending in .yaml or .yml are read as YAML,
// anything else as JSON. An empty path is a no-op.
func parseFile(c *Config, path string) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	fc := fromConfig(c)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return err
	}

	fc.apply(c)
	return nil
}

func fromConfig(c *Config) fileConfig {
	return fileConfig{
		ListenAddr:        c.ListenAddr,
		BaseURL:           c.BaseURL,
		LogLevel:          c.LogLevel,
		BotToken:          c.BotToken,
		BotName:           c.BotName,
		BotOwner:          c.BotOwner,
		OwnerUsername:     c.OwnerUsername,
		PublicBot:         c.PublicBot,
		ChannelID:         c.ChannelID,
		WebhookPath:       c.WebhookPath,
		WebhookSecret:     c.WebhookSecret,
		TokenSecret:       c.TokenSecret,
		Backend:           c.Backend,
		TelegramAPIBase:   c.TelegramAPIBase,
		HTTPTimeout:       timex.Duration{Duration: c.HTTPTimeout},
		RecordStore:       c.RecordStore,
		DatabaseDSN:       c.DatabaseDSN,
		BoltPath:          c.BoltPath,
		CacheTTL:          timex.Duration{Duration: c.CacheTTL},
		RateLimit:         c.RateLimit,
		RateLimitRequests: c.RateLimitRequests,
		RateLimitWindow:   timex.Duration{Duration: c.RateLimitWindow},
		RedisAddr:         c.RedisAddr,
		MaxUploadSize:     c.MaxUploadSize,
		MaxStreamSize:     c.MaxStreamSize,
		RangeChunkSize:    c.RangeChunkSize,
		LegacyStatus:      c.LegacyStatus,
		S3RootUser:        c.S3RootUser,
		S3RootPassword:    c.S3RootPassword,
		S3Bucket:          c.S3Bucket,
		S3Region:          c.S3Region,
		S3BaseEndpoint:    c.S3BaseEndpoint,
		S3Prefix:          c.S3Prefix,
	}
}

func (fc fileConfig) apply(c *Config) {
	c.ListenAddr = fc.ListenAddr
	c.BaseURL = fc.BaseURL
	c.LogLevel = fc.LogLevel
	c.BotToken = fc.BotToken
	c.BotName = fc.BotName
	c.BotOwner = fc.BotOwner
	c.OwnerUsername = fc.OwnerUsername
	c.PublicBot = fc.PublicBot
	c.ChannelID = fc.ChannelID
	c.WebhookPath = fc.WebhookPath
	c.WebhookSecret = fc.WebhookSecret
	c.TokenSecret = fc.TokenSecret
	c.Backend = fc.Backend
	c.TelegramAPIBase = fc.TelegramAPIBase
	c.HTTPTimeout = fc.HTTPTimeout.Duration
	c.RecordStore = fc.RecordStore
	c.DatabaseDSN = fc.DatabaseDSN
	c.BoltPath = fc.BoltPath
	c.CacheTTL = fc.CacheTTL.Duration
	c.RateLimit = fc.RateLimit
	c.RateLimitRequests = fc.RateLimitRequests
	c.RateLimitWindow = fc.RateLimitWindow.Duration
	c.RedisAddr = fc.RedisAddr
	c.MaxUploadSize = fc.MaxUploadSize
	c.MaxStreamSize = fc.MaxStreamSize
	c.RangeChunkSize = fc.RangeChunkSize
	c.LegacyStatus = fc.LegacyStatus
	c.S3RootUser = fc.S3RootUser
	c.S3RootPassword = fc.S3RootPassword
	c.S3Bucket = fc.S3Bucket
	c.S3Region = fc.S3Region
	c.S3BaseEndpoint = fc.S3BaseEndpoint
	c.S3Prefix = fc.S3Prefix
}
