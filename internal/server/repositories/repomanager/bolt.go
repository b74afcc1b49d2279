package repomanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/dmitrijs2005/tgfilestream/internal/filex"
	"github.com/dmitrijs2005/tgfilestream/internal/server/repositories/files"
)

// BoltRepositoryManager keeps the records in a single local bolt file.
type BoltRepositoryManager struct {
	db   *bolt.DB
	repo *files.BoltRepository
	mu   sync.Mutex
}

// NewBoltRepositoryManager opens (or creates) the bolt file at path.
func NewBoltRepositoryManager(path string) (*BoltRepositoryManager, error) {
	abs, err := filex.EnsureParentDir(path)
	if err != nil {
		return nil, err
	}

	db, err := bolt.Open(abs, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt open error: %w", err)
	}

	repo, err := files.NewBoltRepository(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltRepositoryManager{db: db, repo: repo}, nil
}

// RunMigrations is a no-op: buckets are created when the file is opened.
func (m *BoltRepositoryManager) RunMigrations(context.Context) error {
	return nil
}

func (m *BoltRepositoryManager) Files() files.Repository {
	return m.repo
}

// InTx serializes fn against other InTx callers. Each repository call is
// its own bolt transaction, so fn must not rely on rollback.
func (m *BoltRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, repo files.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m.repo)
}

func (m *BoltRepositoryManager) Close() error {
	return m.db.Close()
}
