package cachestore

import (
	"github.com/gofrs/flock"
	"github.com/pkg/errors"
)

// ErrCacheLocked marks a subdir as unavailable because another indexer
// process currently holds its cache lock. Per spec §7 this fails just the
// one subdir immediately; it is never retried or waited on.
var ErrCacheLocked = errors.New("cache locked by another indexer")

// fileLocker serializes access to one subdir's embedded cache file across
// concurrent conda-index processes on the same host. The server backend has
// no equivalent and takes no lock of any kind; its writes rely only on the
// per-call transactions in store.go.
type fileLocker struct {
	fl *flock.Flock
}

// lockEmbedded makes one non-blocking attempt to hold an exclusive lock on
// lockPath, returning ErrCacheLocked immediately if another process already
// holds it rather than waiting for release.
func lockEmbedded(lockPath string) (*fileLocker, error) {
	fl := flock.New(lockPath)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.Wrapf(err, "locking %s", lockPath)
	}
	if !ok {
		return nil, errors.Wrapf(ErrCacheLocked, "%s", lockPath)
	}
	return &fileLocker{fl: fl}, nil
}

func (l *fileLocker) Unlock() error {
	return errors.Wrap(l.fl.Unlock(), "releasing file lock")
}
