package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// parseEnv overlays values from the dotenv file at path (if present) and
// then from lookup. A variable set in the environment wins over the file.
func parseEnv(c *Config, path string, lookup func(string) (string, bool)) error {
	fileVars := map[string]string{}
	if path != "" {
		vars, err := godotenv.Read(path)
		switch {
		case err == nil:
			fileVars = vars
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("read %s: %w", path, err)
		}
	}

	get := func(key string) (string, bool) {
		if lookup != nil {
			if v, ok := lookup(key); ok {
				return v, true
			}
		}
		v, ok := fileVars[key]
		return v, ok
	}

	p := envParser{get: get}

	p.str("LISTEN_ADDR", &c.ListenAddr)
	p.str("BASE_URL", &c.BaseURL)
	p.str("LOG_LEVEL", &c.LogLevel)

	p.str("BOT_TOKEN", &c.BotToken)
	p.str("BOT_NAME", &c.BotName)
	p.int64("BOT_OWNER", &c.BotOwner)
	p.str("OWNER_USERNAME", &c.OwnerUsername)
	p.bool("PUBLIC_BOT", &c.PublicBot)
	p.int64("BOT_CHANNEL", &c.ChannelID)
	p.str("BOT_WEBHOOK", &c.WebhookPath)
	p.str("BOT_SECRET", &c.WebhookSecret)
	p.str("SIA_SECRET", &c.TokenSecret)

	p.str("BACKEND", &c.Backend)
	p.str("TELEGRAM_API_BASE", &c.TelegramAPIBase)
	p.duration("HTTP_TIMEOUT", &c.HTTPTimeout)

	p.str("RECORD_STORE", &c.RecordStore)
	p.str("DATABASE_DSN", &c.DatabaseDSN)
	p.str("BOLT_PATH", &c.BoltPath)

	p.duration("CACHE_TTL", &c.CacheTTL)

	p.str("RATE_LIMIT", &c.RateLimit)
	p.int("RATE_LIMIT_REQUESTS", &c.RateLimitRequests)
	p.duration("RATE_LIMIT_WINDOW", &c.RateLimitWindow)
	p.str("REDIS_ADDR", &c.RedisAddr)

	p.int64("MAX_UPLOAD_SIZE", &c.MaxUploadSize)
	p.int64("MAX_STREAM_SIZE", &c.MaxStreamSize)
	p.int64("RANGE_CHUNK_SIZE", &c.RangeChunkSize)
	p.bool("LEGACY_STATUS", &c.LegacyStatus)

	p.str("S3_ROOT_USER", &c.S3RootUser)
	p.str("S3_ROOT_PASSWORD", &c.S3RootPassword)
	p.str("S3_BUCKET", &c.S3Bucket)
	p.str("S3_REGION", &c.S3Region)
	p.str("S3_BASE_ENDPOINT", &c.S3BaseEndpoint)
	p.str("S3_PREFIX", &c.S3Prefix)

	return errors.Join(p.errs...)
}

type envParser struct {
	get  func(string) (string, bool)
	errs []error
}

func (p *envParser) str(key string, dst *string) {
	if v, ok := p.get(key); ok {
		*dst = v
	}
}

func (p *envParser) bool(key string, dst *bool) {
	if v, ok := p.get(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = b
	}
}

func (p *envParser) int(key string, dst *int) {
	if v, ok := p.get(key); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (p *envParser) int64(key string, dst *int64) {
	if v, ok := p.get(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}
}

func (p *envParser) duration(key string, dst *time.Duration) {
	if v, ok := p.get(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = d
	}
}
