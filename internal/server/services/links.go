package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/cryptox"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/files"
	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/repomanager"
)

// RevokeTokenLength is the length of the revoke token handed to uploaders.
const RevokeTokenLength = 16

var (
	ErrNoRecordStore = errors.New("record store not configured")
	ErrNoMessageID   = errors.New("channel did not return a message id")
)

// Published is the outcome of storing an upload.
type Published struct {
	Info *models.FileInfo
	Hash string
	// RevokeToken is empty when no record could be kept for the file.
	RevokeToken string
}

// Links are the public URLs of one file.
type Links struct {
	StreamPage string
	Stream     string
	Download   string
	Telegram   string
}

// BuildLinks derives the public URLs for hash under baseURL.
func BuildLinks(baseURL, botUsername, hash string) Links {
	base := strings.TrimRight(baseURL, "/")
	return Links{
		StreamPage: base + "/stream?file=" + url.QueryEscape(hash),
		Stream:     base + "/stream/" + hash,
		Download:   base + "/dl/" + hash,
		Telegram:   "https://t.me/" + botUsername + "/?start=" + hash,
	}
}

// LinkService publishes uploads as links and revokes them.
type LinkService struct {
	codec     *cryptox.Codec
	storer    Storer
	deleter   Deleter
	repos     repomanager.RepositoryManager
	cache     MetadataCache
	channelID int64
	now       func() time.Time
	logger    logging.Logger
}

// NewLinkService wires the link use cases. repos, cache and deleter may be
// nil; without repos nothing is recorded and revocation is unavailable.
func NewLinkService(codec *cryptox.Codec, channelID int64, storer Storer, deleter Deleter,
	repos repomanager.RepositoryManager, cache MetadataCache, logger logging.Logger) *LinkService {
	return &LinkService{
		codec:     codec,
		storer:    storer,
		deleter:   deleter,
		repos:     repos,
		cache:     cache,
		channelID: channelID,
		now:       time.Now,
		logger:    logger.With("module", "links"),
	}
}

// Publish copies kind into the storage channel, issues its token and keeps
// a record of the upload by from.
func (s *LinkService) Publish(ctx context.Context, from *models.User, kind models.FileKind) (*Published, error) {
	stored, err := s.storer.StoreMessage(ctx, s.channelID, kind)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.MessageID == 0 {
		return nil, ErrNoMessageID
	}

	info, err := models.DescribeMessage(stored)
	if err != nil {
		info, err = models.Describe(stored.MessageID, kind)
		if err != nil {
			return nil, err
		}
	}
	info.MessageID = stored.MessageID

	out := &Published{Info: info, Hash: s.codec.EncodeID(stored.MessageID)}
	if s.repos == nil {
		return out, nil
	}

	revokeToken, err := common.RandomString(RevokeTokenLength, common.RevokeTokenAlphabet)
	if err != nil {
		return nil, fmt.Errorf("revoke token: %w", err)
	}

	rec := &models.FileRecord{
		Hash:           out.Hash,
		MessageID:      info.MessageID,
		FileID:         info.FileID,
		Name:           info.Name,
		Size:           info.Size,
		MimeType:       info.MimeType,
		Kind:           info.Kind,
		RevokeVerifier: cryptox.RevokeVerifier(revokeToken, out.Hash),
		CreatedAt:      s.now().UTC(),
	}
	if from != nil {
		rec.UserID = from.ID
		rec.UserName = DisplayName(from)
	}

	if err := s.repos.Files().Create(ctx, rec); err != nil {
		s.logger.Error(ctx, "file record not saved", "message_id", rec.MessageID, "error", err)
		return out, nil
	}

	out.RevokeToken = revokeToken
	return out, nil
}

// Revoke marks the file named by hash revoked and deletes the stored
// message. The owner may omit revokeToken. hash may be any token issued
// for the file.
func (s *LinkService) Revoke(ctx context.Context, hash, revokeToken string, isOwner bool) (*models.FileRecord, error) {
	if s.repos == nil {
		return nil, ErrNoRecordStore
	}

	var rec *models.FileRecord
	err := s.repos.InTx(ctx, func(ctx context.Context, repo files.Repository) error {
		var err error
		rec, err = s.lookup(ctx, repo, hash)
		if err != nil {
			return err
		}
		if rec.Revoked {
			return common.ErrRevoked
		}
		if !isOwner && !cryptox.CheckRevokeToken(revokeToken, rec.Hash, rec.RevokeVerifier) {
			return common.ErrUnauthorized
		}
		return repo.MarkRevoked(ctx, rec.Hash, s.now().UTC())
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Delete(rec.MessageID)
	}
	if s.deleter != nil {
		if err := s.deleter.DeleteMessage(ctx, s.channelID, rec.MessageID); err != nil {
			s.logger.Warn(ctx, "stored message not deleted", "message_id", rec.MessageID, "error", err)
		}
	}

	s.logger.Info(ctx, "file revoked", "message_id", rec.MessageID, "owner", isOwner)
	return rec, nil
}

func (s *LinkService) lookup(ctx context.Context, repo files.Repository, hash string) (*models.FileRecord, error) {
	rec, err := repo.GetByHash(ctx, hash)
	if !errors.Is(err, common.ErrorNotFound) {
		return rec, err
	}

	id, decodeErr := s.codec.DecodeID(hash)
	if decodeErr != nil {
		return nil, err
	}
	return repo.GetByMessageID(ctx, id)
}

// ActiveFiles returns the user's files that are still served.
func (s *LinkService) ActiveFiles(ctx context.Context, userID int64, limit int) ([]*models.FileRecord, error) {
	if s.repos == nil {
		return nil, nil
	}
	return s.repos.Files().ListByUser(ctx, userID, limit)
}

// DisplayName renders a user as "First @username".
func DisplayName(u *models.User) string {
	if u.Username == "" {
		return u.FirstName
	}
	return u.FirstName + " @" + u.Username
}
