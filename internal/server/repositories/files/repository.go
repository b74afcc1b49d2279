// Package files persists the records of files published through the bot:
// who uploaded them, the revoke verifier, revocation state and download
// counts.
package files

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
)

// ErrAlreadyExists is returned by Create for a duplicate hash or message id.
var ErrAlreadyExists = errors.New("file record already exists")

// Repository is the file record store. Lookups of unknown records return
// common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, rec *models.FileRecord) error
	GetByHash(ctx context.Context, hash string) (*models.FileRecord, error)
	GetByMessageID(ctx context.Context, messageID int64) (*models.FileRecord, error)
	// MarkRevoked flags the record; it returns common.ErrRevoked when the
	// record was already revoked.
	MarkRevoked(ctx context.Context, hash string, at time.Time) error
	IncrementDownloads(ctx context.Context, messageID int64) error
	// ListByUser returns the user's active records, newest first. A limit
	// of zero returns them all.
	ListByUser(ctx context.Context, userID int64, limit int) ([]*models.FileRecord, error)
}
