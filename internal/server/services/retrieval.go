package services

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/cryptox"
	"github.com/dmitrijs2005/tgfilestream/internal/logging"
	"github.com/dmitrijs2005/tgfilestream/internal/rangex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/files"
)

// RetrievalService turns tokens into file metadata and payload streams.
// The cache and the record store are optional; pass nil to disable them.
type RetrievalService struct {
	backend   Backend
	codec     *cryptox.Codec
	channelID int64
	cache     MetadataCache
	records   files.Repository
	logger    logging.Logger
}

func NewRetrievalService(backend Backend, codec *cryptox.Codec, channelID int64, cache MetadataCache,
	records files.Repository, logger logging.Logger) *RetrievalService {
	return &RetrievalService{
		backend:   backend,
		codec:     codec,
		channelID: channelID,
		cache:     cache,
		records:   records,
		logger:    logger.With("module", "retrieval"),
	}
}

// Decode turns a token into a backend message id.
func (s *RetrievalService) Decode(token string) (int64, error) {
	return s.codec.DecodeID(token)
}

// Resolve decodes token and resolves the metadata of the file it names.
func (s *RetrievalService) Resolve(ctx context.Context, token string) (*models.FileInfo, error) {
	id, err := s.Decode(token)
	if err != nil {
		return nil, err
	}
	return s.ResolveID(ctx, id)
}

// ResolveID resolves metadata for a decoded message id. A revoked record
// fails with common.ErrRevoked before any backend call is made.
func (s *RetrievalService) ResolveID(ctx context.Context, id int64) (*models.FileInfo, error) {
	if s.records != nil {
		rec, err := s.records.GetByMessageID(ctx, id)
		switch {
		case err == nil:
			if rec.Revoked {
				return nil, common.ErrRevoked
			}
			if rec.FileID != "" {
				return rec.Info(), nil
			}
		case errors.Is(err, common.ErrorNotFound):
		default:
			return nil, fmt.Errorf("record lookup %d: %w", id, err)
		}
	}

	if s.cache != nil {
		if info, ok := s.cache.Get(id); ok {
			return info, nil
		}
	}

	msg, err := s.backend.FetchMessage(ctx, s.channelID, id)
	if err != nil {
		return nil, err
	}

	info, err := models.DescribeMessage(msg)
	if err != nil {
		return nil, err
	}
	info.MessageID = id

	if s.cache != nil {
		s.cache.Set(id, info)
	}
	return info, nil
}

// Open starts reading the payload of info. With a window only that slice
// of the file is returned.
func (s *RetrievalService) Open(ctx context.Context, info *models.FileInfo, window *rangex.Window) (io.ReadCloser, error) {
	path, err := s.backend.ResolveFile(ctx, info.FileID)
	if err != nil {
		return nil, err
	}
	return s.backend.FetchFile(ctx, path, window)
}

// RecordDownload bumps the download counter of id. Failures are logged and
// otherwise ignored.
func (s *RetrievalService) RecordDownload(ctx context.Context, id int64) {
	if s.records == nil {
		return
	}
	err := s.records.IncrementDownloads(ctx, id)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logger.Warn(ctx, "download counter not updated", "message_id", id, "error", err)
	}
}
