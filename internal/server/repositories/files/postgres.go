package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tgfilestream/internal/common"
	"github.com/dmitrijs2005/tgfilestream/internal/dbx"
	"github.com/dmitrijs2005/tgfilestream/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const selectColumns = `hash, message_id, file_id, user_id, user_name, file_name, file_size, mime_type, kind,
	revoke_verifier, revoked, revoked_at, downloads, created_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rec *models.FileRecord) error {
	query := `
		INSERT INTO files (hash, message_id, file_id, user_id, user_name, file_name, file_size, mime_type, kind, revoke_verifier, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		rec.Hash, rec.MessageID, rec.FileID, rec.UserID, rec.UserName, rec.Name, rec.Size, rec.MimeType, rec.Kind,
		rec.RevokeVerifier, rec.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, hash string) (*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE hash = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, hash))
}

func (r *PostgresRepository) GetByMessageID(ctx context.Context, messageID int64) (*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files WHERE message_id = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, messageID))
}

func (r *PostgresRepository) MarkRevoked(ctx context.Context, hash string, at time.Time) error {
	query := `UPDATE files SET revoked = TRUE, revoked_at = $2 WHERE hash = $1 AND NOT revoked`
	res, err := r.db.ExecContext(ctx, query, hash, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	var revoked bool
	err = r.db.QueryRowContext(ctx, `SELECT revoked FROM files WHERE hash = $1`, hash).Scan(&revoked)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return common.ErrorNotFound
	case err != nil:
		return fmt.Errorf("db error: %w", err)
	case revoked:
		return common.ErrRevoked
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) IncrementDownloads(ctx context.Context, messageID int64) error {
	query := `UPDATE files SET downloads = downloads + 1 WHERE message_id = $1`
	res, err := r.db.ExecContext(ctx, query, messageID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]*models.FileRecord, error) {
	query := `SELECT ` + selectColumns + ` FROM files
		WHERE user_id = $1 AND NOT revoked
		ORDER BY created_at DESC
		LIMIT NULLIF($2, 0)`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(s scanner) (*models.FileRecord, error) {
	var (
		rec       models.FileRecord
		revokedAt sql.NullTime
	)
	err := s.Scan(&rec.Hash, &rec.MessageID, &rec.FileID, &rec.UserID, &rec.UserName, &rec.Name, &rec.Size,
		&rec.MimeType, &rec.Kind, &rec.RevokeVerifier, &rec.Revoked, &revokedAt, &rec.Downloads, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

func scanOne(row *sql.Row) (*models.FileRecord, error) {
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return rec, nil
}
