package scheduler

import (
	"context"
	"path/filepath"

	"github.com/conda-forge/conda-index-go/internal/cachestore"
)

// EmbeddedBackend opens a per-subdir SQLite cache under <subdir>/.cache, per
// spec §6's default "sqlite" backend selection.
type EmbeddedBackend struct{}

// Open implements Backend.
func (EmbeddedBackend) Open(ctx context.Context, channelRoot, subdir string) (*cachestore.Store, error) {
	return cachestore.OpenEmbedded(ctx, filepath.Join(channelRoot, subdir))
}

// ServerBackend opens a shared Postgres-backed cache, keyed by a channel
// prefix derived from channelRoot, per spec §6's "postgresql" backend
// selection.
type ServerBackend struct {
	DSN string
}

// Open implements Backend.
func (b ServerBackend) Open(ctx context.Context, channelRoot, subdir string) (*cachestore.Store, error) {
	return cachestore.OpenServer(ctx, b.DSN, channelRoot, subdir)
}
