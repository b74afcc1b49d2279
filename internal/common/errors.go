// Package common defines shared constants and sentinel errors used across
// the token codec, retrieval pipeline and delivery layer. Callers should use
// errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Request validation errors.
	ErrMethodNotAllowed    = errors.New("method not allowed")
	ErrMissingParameter    = errors.New("missing file parameter")
	ErrInvalidMode         = errors.New("invalid mode")
	ErrInvalidToken        = errors.New("invalid token")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")

	// Retrieval errors.
	ErrUnsupportedFileKind = errors.New("unsupported file kind")
	ErrSizeExceeded        = errors.New("size exceeded")
	ErrRevoked             = errors.New("file revoked")
	ErrBackendUnavailable  = errors.New("backend unavailable")

	// Service-level errors.
	ErrorInternal   = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
)

// BackendError is a failure reported by the messaging backend itself, e.g.
// a Bot API reply with ok=false. Code and Description are kept as the
// backend sent them.
type BackendError struct {
	Code        int
	Description string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Code, e.Description)
}

// Unwrap lets BackendError match ErrBackendUnavailable.
func (e *BackendError) Unwrap() error {
	return ErrBackendUnavailable
}
