// Package server wires the configured backend, record store, cache, rate
// limiter and bot into the HTTP server and runs it until a termination
// signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tgfilestream/internal/cryptox"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/server/bot"
	"github.com/dmitrijs2005/tgfilestream/internal/server/config"
	"github.com/dmitrijs2005/tgfilestream/internal/server/httpserver"
	"github.com/dmitrijs2005/tgfilestream/internal/server/metacache"
	"github.com/dmitrijs2005/tgfilestream/internal/server/objectstore"
	"github.com/dmitrijs2005/tgfilestream/internal/server/ratelimit"
	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/files"
	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tgfilestream/internal/server/services"
	"github.com/dmitrijs2005/tgfilestream/internal/server/telegram"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	server  *httpserver.Server
	closers []io.Closer
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	return newApp(ctx, c, logging.NewJSONLogger(os.Stdout, c.LogLevel))
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger) (_ *App, err error) {
	app := &App{config: c, logger: logger}
	defer func() {
		if err != nil {
			app.close()
		}
	}()

	codec, err := cryptox.NewCodec(c.TokenSecret)
	if err != nil {
		return nil, err
	}

	var (
		backend services.Backend
		tg      *telegram.Client
	)
	switch c.Backend {
	case config.BackendTelegram:
		tg = telegram.NewClient(c.TelegramAPIBase, c.BotToken, c.HTTPTimeout, logger)
		backend = tg
	case config.BackendS3:
		store, err := objectstore.New(ctx, objectstore.Options{
			User:        c.S3RootUser,
			Password:    c.S3RootPassword,
			Bucket:      c.S3Bucket,
			Region:      c.S3Region,
			Endpoint:    c.S3BaseEndpoint,
			Prefix:      c.S3Prefix,
			HTTPTimeout: c.HTTPTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("object store init error: %w", err)
		}
		backend = store
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}

	repos, err := app.openRecordStore(ctx)
	if err != nil {
		return nil, err
	}
	var records files.Repository
	if repos != nil {
		records = repos.Files()
	}

	var cache services.MetadataCache
	if c.CacheTTL > 0 {
		cache = metacache.New(c.CacheTTL)
	}

	limiter, err := app.openLimiter(ctx)
	if err != nil {
		return nil, err
	}

	retrieval := services.NewRetrievalService(backend, codec, c.ChannelID, cache, records, logger)

	var (
		handler httpserver.BotHandler
		api     httpserver.WebhookAPI
	)
	if tg != nil {
		links := services.NewLinkService(codec, c.ChannelID, tg, tg, repos, cache, logger)
		handler = bot.NewHandler(tg, links, retrieval, bot.Options{
			Owner:         c.BotOwner,
			OwnerUsername: c.OwnerUsername,
			Public:        c.PublicBot,
			BaseURL:       c.BaseURL,
			MaxUploadSize: c.MaxUploadSize,
			MaxStreamSize: c.MaxStreamSize,
		}, logger)
		api = tg
	}

	app.server = httpserver.New(httpserver.Config{
		ListenAddr:     c.ListenAddr,
		BaseURL:        c.BaseURL,
		BotName:        c.BotName,
		OwnerUsername:  c.OwnerUsername,
		WebhookPath:    c.WebhookPath,
		WebhookSecret:  c.WebhookSecret,
		MaxUploadSize:  c.MaxUploadSize,
		MaxStreamSize:  c.MaxStreamSize,
		LegacyStatus:   c.LegacyStatus,
		RangeChunkSize: c.RangeChunkSize,
	}, retrieval, limiter, handler, api, httpserver.NewMetrics(), logger)

	return app, nil
}

// openRecordStore returns nil when no record store is configured.
func (app *App) openRecordStore(ctx context.Context) (repomanager.RepositoryManager, error) {
	var (
		repos repomanager.RepositoryManager
		err   error
	)
	switch app.config.RecordStore {
	case config.StorePostgres:
		repos, err = repomanager.NewPostgresRepositoryManager(app.config.DatabaseDSN)
	case config.StoreBolt:
		repos, err = repomanager.NewBoltRepositoryManager(app.config.BoltPath)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.closers = append(app.closers, repos)

	if err := repos.RunMigrations(ctx); err != nil {
		return nil, fmt.Errorf("migrations error: %w", err)
	}
	return repos, nil
}

// openLimiter returns nil when rate limiting is off.
func (app *App) openLimiter(ctx context.Context) (ratelimit.Limiter, error) {
	c := app.config
	switch c.RateLimit {
	case config.LimiterMemory:
		return ratelimit.NewMemory(c.RateLimitRequests, c.RateLimitWindow), nil
	case config.LimiterRedis:
		rdb, err := ratelimit.NewRedisClient(ctx, c.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("redis init error: %w", err)
		}
		app.closers = append(app.closers, rdb)
		return ratelimit.NewRedis(rdb, c.RateLimitRequests, c.RateLimitWindow), nil
	default:
		return nil, nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i].Close(); err != nil {
			app.logger.Error(context.Background(), "close error", "error", err)
		}
	}
	app.closers = nil
}

// Run serves until ctx is cancelled or a termination signal arrives, then
// releases every resource opened by NewApp.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.Backend, "record_store", app.config.RecordStore)

	app.initSignalHandler(cancelFunc)

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.server.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			runErr = err
			cancelFunc()
		}
	}()

	wg.Wait()
	app.close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
