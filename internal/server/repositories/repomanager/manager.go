// Package repomanager owns the record store connection: it opens the
// configured backend, runs schema migrations and vends repositories,
// optionally inside a transaction.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/files"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	Files() files.Repository
	// InTx runs fn against a repository whose writes are committed only
	// if fn returns nil.
	InTx(ctx context.Context, fn func(ctx context.Context, repo files.Repository) error) error
	Close() error
}
