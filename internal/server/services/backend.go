// Package services holds the file service use cases: resolving tokens into
// file metadata, opening payload streams, publishing uploads as links and
// revoking them.
package services

import (
	"context"
	"io"

	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
)

// Backend reads stored messages and their payloads.
type Backend interface {
	FetchMessage(ctx context.Context, chatID, messageID int64) (*models.Message, error)
	ResolveFile(ctx context.Context, fileID string) (string, error)
	FetchFile(ctx context.Context, path string, window *rangex.Window) (io.ReadCloser, error)
}

// Storer copies a payload into the storage channel.
type Storer interface {
	StoreMessage(ctx context.Context, chatID int64, kind models.FileKind) (*models.Message, error)
}

// Deleter removes a stored message.
type Deleter interface {
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// MetadataCache keeps resolved FileInfo values by message id.
type MetadataCache interface {
	Get(messageID int64) (*models.FileInfo, bool)
	Set(messageID int64, info *models.FileInfo)
	Delete(messageID int64)
}
