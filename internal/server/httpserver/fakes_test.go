package httpserver

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/bot"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/telegram"
)

const (
	videoToken = "VIDEOTOKEN"
	docToken   = "DOCTOKEN"
	bigToken   = "BIGTOKEN"
	goneToken  = "GONETOKEN"
	downToken  = "DOWNTOKEN"
)

type fakeRetrieval struct {
	mu        sync.Mutex
	ids       map[string]int64
	infos     map[int64]*models.FileInfo
	errs      map[int64]error
	payloads  map[int64][]byte
	openErr   error
	opened    int
	windows   []*rangex.Window
	downloads []int64
}

func newFakeRetrieval() *fakeRetrieval {
	return &fakeRetrieval{
		ids: map[string]int64{videoToken: 1, docToken: 2, bigToken: 3, goneToken: 4, downToken: 5},
		infos: map[int64]*models.FileInfo{
			1: {MessageID: 1, FileID: "vid", Name: "clip.mp4", Size: 10, MimeType: "video/mp4", Kind: models.KindVideo},
			2: {MessageID: 2, FileID: "doc", Name: "report.pdf", Size: 10, MimeType: "application/pdf", Kind: models.KindDocument},
			3: {MessageID: 3, FileID: "big", Name: "big.bin", Size: 500, Kind: models.KindDocument},
		},
		errs: map[int64]error{
			4: common.ErrRevoked,
			5: &common.BackendError{Code: 400, Description: "Bad Request: message to edit not found"},
		},
		payloads: map[int64][]byte{
			1: []byte("0123456789"),
			2: []byte("abcdefghij"),
		},
	}
}

func (f *fakeRetrieval) Decode(token string) (int64, error) {
	id, ok := f.ids[token]
	if !ok {
		return 0, common.ErrInvalidToken
	}
	return id, nil
}

func (f *fakeRetrieval) ResolveID(_ context.Context, id int64) (*models.FileInfo, error) {
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	info, ok := f.infos[id]
	if !ok {
		return nil, common.ErrUnsupportedFileKind
	}
	return info, nil
}

func (f *fakeRetrieval) Open(_ context.Context, info *models.FileInfo, window *rangex.Window) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	f.windows = append(f.windows, window)
	if f.openErr != nil {
		return nil, f.openErr
	}
	data := f.payloads[info.MessageID]
	if window != nil {
		data = data[window.Start : window.End+1]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeRetrieval) RecordDownload(_ context.Context, id int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloads = append(f.downloads, id)
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *fakeLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

type fakeBot struct {
	updates []*bot.Update
	origins []string
	err     error
}

func (b *fakeBot) Handle(_ context.Context, u *bot.Update, origin string) error {
	b.updates = append(b.updates, u)
	b.origins = append(b.origins, origin)
	return b.err
}

type fakeAPI struct {
	webhookURL    string
	webhookSecret string
	getMeCalls    int
	getMeErr      error
}

func (a *fakeAPI) SetWebhook(_ context.Context, webhookURL, secret string) (*telegram.Response, error) {
	a.webhookURL, a.webhookSecret = webhookURL, secret
	return &telegram.Response{OK: true, Result: []byte("true"), Description: "Webhook was set"}, nil
}

func (a *fakeAPI) GetMe(context.Context) (*models.User, error) {
	a.getMeCalls++
	if a.getMeErr != nil {
		return nil, a.getMeErr
	}
	return &models.User{ID: 77, IsBot: true, FirstName: "Stream", Username: "streambot"}, nil
}

var errLimiterDown = errors.New("redis: connection refused")

func testConfig() Config {
	return Config{
		BotName:       "FileStream Bot",
		OwnerUsername: "owner",
		WebhookPath:   "/webhook",
		WebhookSecret: "hook-secret",
		MaxUploadSize: 1000,
		MaxStreamSize: 100,
	}
}

type testDeps struct {
	retrieval *fakeRetrieval
	limiter   *fakeLimiter
	bot       *fakeBot
	api       *fakeAPI
}

func newTestServer(cfg Config, withLimiter bool) (*Server, *testDeps) {
	d := &testDeps{
		retrieval: newFakeRetrieval(),
		bot:       &fakeBot{},
		api:       &fakeAPI{},
	}
	var limiter *fakeLimiter
	if withLimiter {
		limiter = &fakeLimiter{allow: true}
		d.limiter = limiter
	}

	s := New(cfg, d.retrieval, nil, d.bot, d.api, NewMetrics(), logging.NewDiscard())
	if limiter != nil {
		s.limiter = limiter
	}
	return s, d
}
