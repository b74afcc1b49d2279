// Package httpserver is the HTTP face of the service: file delivery by
// token, the player and home pages, the bot webhook and operational
// endpoints.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/bot"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/ratelimit"
	"github.com/dmitrijs2005/tgfilestream/internal/server/telegram"
	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	gzipMinSize            = 256
)

// compress gzips HTML pages and JSON API replies. File payloads are never
// wrapped.
var compress = func() func(http.Handler) http.HandlerFunc {
	wrap, err := gzhttp.NewWrapper(gzhttp.MinSize(gzipMinSize))
	if err != nil {
		panic("httpserver: gzip wrapper initialization failed: " + err.Error())
	}
	return wrap
}()

// Retrieval resolves tokens and streams payloads.
type Retrieval interface {
	Decode(token string) (int64, error)
	ResolveID(ctx context.Context, id int64) (*models.FileInfo, error)
	Open(ctx context.Context, info *models.FileInfo, window *rangex.Window) (io.ReadCloser, error)
	RecordDownload(ctx context.Context, id int64)
}

// BotHandler consumes webhook updates.
type BotHandler interface {
	Handle(ctx context.Context, u *bot.Update, origin string) error
}

// WebhookAPI is the Bot API surface behind the passthrough routes.
type WebhookAPI interface {
	SetWebhook(ctx context.Context, webhookURL, secret string) (*telegram.Response, error)
	GetMe(ctx context.Context) (*models.User, error)
}

type Config struct {
	ListenAddr    string
	BaseURL       string
	BotName       string
	OwnerUsername string
	WebhookPath   string
	WebhookSecret string
	MaxUploadSize int64
	MaxStreamSize int64
	LegacyStatus  bool
	// RangeChunkSize caps open-ended ranges such as "bytes=N-"; zero
	// serves them to the end of the file.
	RangeChunkSize int64

	ShutdownTimeout time.Duration
}

type Server struct {
	cfg       Config
	retrieval Retrieval
	limiter   ratelimit.Limiter
	bot       BotHandler
	api       WebhookAPI
	metrics   *Metrics
	logger    logging.Logger
	pages     *pages

	mu          sync.Mutex
	botUsername string
}

// New builds the server. limiter, handler and api may be nil to disable
// rate limiting, webhook intake and the Bot API routes respectively.
func New(cfg Config, retrieval Retrieval, limiter ratelimit.Limiter, handler BotHandler, api WebhookAPI,
	metrics *Metrics, logger logging.Logger) *Server {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	return &Server{
		cfg:       cfg,
		retrieval: retrieval,
		limiter:   limiter,
		bot:       handler,
		api:       api,
		metrics:   metrics,
		logger:    logger.With("module", "http_server"),
		pages:     mustLoadPages(),
	}
}

// Router returns the route table. Every route, matched or not, passes
// through the request middleware.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()
	r.Use(s.observe)
	gz := compress

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, "ok")
	})
	r.Handle("/metrics", s.metrics.Handler())

	if s.bot != nil {
		r.HandleFunc(s.cfg.WebhookPath, s.handleWebhook).Methods(http.MethodPost)
	}
	if s.api != nil {
		r.Handle("/registerWebhook", gz(http.HandlerFunc(s.handleRegisterWebhook)))
		r.Handle("/unregisterWebhook", gz(http.HandlerFunc(s.handleUnregisterWebhook)))
		r.Handle("/getMe", gz(http.HandlerFunc(s.handleGetMe)))
	}

	r.HandleFunc("/dl/{token:[A-Z2-7]+}", s.handlePathToken(common.ModeAttachment))
	r.HandleFunc("/stream/{token:[A-Z2-7]+}", s.handlePathToken(common.ModeInline))
	r.Handle("/stream", gz(http.HandlerFunc(s.handlePlayer)))
	r.HandleFunc("/", s.handleRoot)
	r.NotFoundHandler = s.observe(http.HandlerFunc(s.handleQuery))
	r.MethodNotAllowedHandler = s.observe(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, common.ErrMethodNotAllowed)
	}))

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", ln.Addr().String())

	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return err
}
