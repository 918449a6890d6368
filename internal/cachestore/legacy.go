package cachestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// migrateLegacyCache backfills a freshly-created embedded cache from a
// pre-SQLite cache tree left behind by an older run: one file per
// already-indexed archive, named "<archive>.json" and holding that archive's
// cached index.json body, sitting directly in cacheDir alongside the new
// cache.db. This is the one-shot conversion spec.md §4.2 describes; it is
// embedded-only since the legacy format was always a local directory of
// loose files, with no shared-server equivalent.
//
// Only the index_json payload and the "indexed" stat stage are backfilled.
// The "fs" stage is deliberately left for the probe that runs immediately
// afterward in this same invocation: it will record the same mtime/size this
// backfill read from disk, so ChangedPaths finds nothing to re-extract.
func migrateLegacyCache(ctx context.Context, s *Store, cacheDir, subdirPath string) error {
	entries, err := os.ReadDir(cacheDir)
	if err != nil {
		return errors.Wrapf(err, "listing cache directory %s", cacheDir)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		archiveName := strings.TrimSuffix(entry.Name(), ".json")
		archivePath := filepath.Join(subdirPath, archiveName)
		info, err := os.Stat(archivePath)
		if os.IsNotExist(err) {
			continue // blob outlived the archive it describes; nothing to backfill
		}
		if err != nil {
			return errors.Wrapf(err, "statting %s", archivePath)
		}

		body, err := os.ReadFile(filepath.Join(cacheDir, entry.Name()))
		if err != nil {
			return errors.Wrapf(err, "reading legacy cache blob %s", entry.Name())
		}
		if !json.Valid(body) {
			continue // not a blob this tool recognizes
		}

		fingerprint := Stat{
			Mtime: float64(info.ModTime().Unix()),
			Size:  info.Size(),
		}
		if err := s.StorePayload(ctx, archiveName, fingerprint, Payload{IndexJSON: body}); err != nil {
			return errors.Wrapf(err, "backfilling %s from legacy cache", archiveName)
		}
	}
	return nil
}
