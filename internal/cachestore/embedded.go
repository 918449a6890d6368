package cachestore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"
)

// cacheDirName is the per-subdir directory conda-index keeps its embedded
// cache and lock file in, alongside the archives it indexes.
const cacheDirName = ".cache"

// OpenEmbedded opens (creating if absent) the embedded SQLite cache for the
// subdir at subdirPath, acquiring an exclusive file lock so a second
// conda-index process targeting the same subdir fails immediately with
// ErrCacheLocked rather than corrupting the cache.
func OpenEmbedded(ctx context.Context, subdirPath string) (*Store, error) {
	cacheDir := filepath.Join(subdirPath, cacheDirName)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating cache directory %s", cacheDir)
	}

	locker, err := lockEmbedded(filepath.Join(cacheDir, ".lock"))
	if err != nil {
		return nil, err
	}

	dbPath := filepath.Join(cacheDir, "cache.db")
	fresh := false
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fresh = true
	}

	// Rollback journal, not WAL: per spec §4.2 this cache must tolerate
	// network filesystems, which WAL's shared-memory index does not.
	db, err := sql.Open(sqliteDialect.driverName, dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(delete)")
	if err != nil {
		_ = locker.Unlock()
		return nil, errors.Wrapf(err, "opening embedded cache %s", dbPath)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers on one *sql.DB

	if err := migrate(ctx, db, sqliteDialect); err != nil {
		_ = db.Close()
		_ = locker.Unlock()
		if fresh {
			_ = os.Remove(dbPath) // leave cache.db absent so the next run retries the migration
		}
		return nil, errors.Wrap(err, "migrating embedded cache")
	}

	store := &Store{
		db:     db,
		d:      sqliteDialect,
		prefix: "",
		subdir: filepath.Base(subdirPath),
		locker: locker,
	}

	if fresh {
		if err := migrateLegacyCache(ctx, store, cacheDir, subdirPath); err != nil {
			_ = store.Close()
			_ = os.Remove(dbPath) // leave cache.db absent so the next run retries the backfill
			return nil, errors.Wrap(err, "migrating legacy cache")
		}
	}

	return store, nil
}
