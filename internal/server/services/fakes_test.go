package services

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/cryptox"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	messages map[int64]*models.Message
	payload  map[string]string
	err      error

	fetches  int
	windows  []*rangex.Window
	stored   []models.FileKind
	nextID   int64
	deleted  []int64
	storeErr error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		messages: map[int64]*models.Message{},
		payload:  map[string]string{},
		nextID:   1000,
	}
}

func (f *fakeBackend) FetchMessage(_ context.Context, _ int64, messageID int64) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, &common.BackendError{Code: 400, Description: "Bad Request: message to edit not found"}
	}
	return m, nil
}

func (f *fakeBackend) ResolveFile(_ context.Context, fileID string) (string, error) {
	if _, ok := f.payload[fileID]; !ok {
		return "", &common.BackendError{Code: 400, Description: "Bad Request: invalid file_id"}
	}
	return "files/" + fileID, nil
}

func (f *fakeBackend) FetchFile(_ context.Context, path string, window *rangex.Window) (io.ReadCloser, error) {
	f.mu.Lock()
	f.windows = append(f.windows, window)
	f.mu.Unlock()

	body := f.payload[strings.TrimPrefix(path, "files/")]
	if window != nil {
		body = body[window.Start : window.End+1]
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func (f *fakeBackend) StoreMessage(_ context.Context, _ int64, kind models.FileKind) (*models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	f.stored = append(f.stored, kind)
	f.nextID++

	msg := &models.Message{MessageID: f.nextID}
	switch k := kind.(type) {
	case models.Document:
		msg.Document = &k.Media
	case models.Audio:
		msg.Audio = &k.Media
	case models.Video:
		msg.Video = &k.Media
	case models.Photo:
		msg.Photo = []models.PhotoSize{k.PhotoSize}
	}
	f.messages[msg.MessageID] = msg
	return msg, nil
}

func (f *fakeBackend) DeleteMessage(_ context.Context, _ int64, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	delete(f.messages, messageID)
	return nil
}

func testCodec(t *testing.T) *cryptox.Codec {
	t.Helper()
	c, err := cryptox.NewCodec("topsecret")
	require.NoError(t, err)
	return c
}

func newBoltManager(t *testing.T) *repomanager.BoltRepositoryManager {
	t.Helper()
	m, err := repomanager.NewBoltRepositoryManager(filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func docMessage(id int64, fileID, name string, size int64) *models.Message {
	return &models.Message{
		MessageID: id,
		Document: &models.Media{
			FileID:       fileID,
			FileUniqueID: "u-" + fileID,
			FileName:     name,
			MimeType:     "application/pdf",
			FileSize:     size,
		},
	}
}
