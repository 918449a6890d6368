// Package probe implements the filesystem probe (component C3): it
// enumerates package archives in a subdir and captures cheap (mtime, size)
// fingerprints as the "upstream" view fed into the cache store.
package probe

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/archive"
	"github.com/conda-forge/conda-index-go/internal/cachestore"
)

// DefaultExcludes names entries that look like archives or clutter the
// listing should never treat as packages.
var DefaultExcludes = map[string]bool{
	"repodata.json": true,
	"index.html":    true,
	".cache":        true,
}

// Prober captures the fs-stage fingerprints for one subdir. It is a
// capability interface so alternative sources (remote object-store listing,
// manual insertion) can stand in for the default local directory listing.
type Prober interface {
	Probe(ctx context.Context, subdirPath string) ([]cachestore.Stat, error)
}

// LocalFS is the default Prober: a non-recursive directory listing of
// subdirPath filtered to recognized archive extensions.
type LocalFS struct {
	// Excludes overrides DefaultExcludes when non-nil.
	Excludes map[string]bool
}

// Probe lists subdirPath and returns one Stat per recognized archive.
func (p LocalFS) Probe(ctx context.Context, subdirPath string) ([]cachestore.Stat, error) {
	excludes := p.Excludes
	if excludes == nil {
		excludes = DefaultExcludes
	}

	entries, err := os.ReadDir(subdirPath)
	if err != nil {
		return nil, errors.Wrapf(err, "listing subdir %s", subdirPath)
	}

	var stats []cachestore.Stat
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "probing subdir")
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || excludes[name] {
			continue
		}
		if archive.DetectFormat(name) == archive.UnknownFormat {
			continue
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "stat-ing %s", filepath.Join(subdirPath, name))
		}
		stats = append(stats, cachestore.Stat{
			Stage: cachestore.StageFS,
			Path:  name,
			Mtime: float64(info.ModTime().Unix()),
			Size:  info.Size(),
		})
	}
	return stats, nil
}
