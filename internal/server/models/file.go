// Package models defines the domain values shared by the backends, the
// record store and the delivery layer.
package models

import "time"

// FileInfo is the metadata half of a file descriptor: everything needed to
// answer a request except the payload bytes.
type FileInfo struct {
	MessageID int64
	// FileID is the backend's handle used to resolve a fetchable path.
	FileID   string
	UniqueID string
	Name     string
	Size     int64
	MimeType string
	Kind     string
}

// FileRecord describes a stored file as persisted by the record store.
type FileRecord struct {
	// Hash is the public token issued for the file.
	Hash      string
	MessageID int64
	FileID    string
	UserID    int64
	UserName  string
	Name      string
	Size      int64
	MimeType  string
	Kind      string

	// RevokeVerifier is derived from the revoke token handed to the owner.
	RevokeVerifier []byte
	Revoked        bool
	RevokedAt      *time.Time

	Downloads int64
	CreatedAt time.Time
}

// Info returns the metadata held by the record.
func (r *FileRecord) Info() *FileInfo {
	return &FileInfo{
		MessageID: r.MessageID,
		FileID:    r.FileID,
		Name:      r.Name,
		Size:      r.Size,
		MimeType:  r.MimeType,
		Kind:      r.Kind,
	}
}
