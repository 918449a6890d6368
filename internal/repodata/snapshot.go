package repodata

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/archive"
	"github.com/conda-forge/conda-index-go/internal/cachestore"
)

// Snapshot builds the pre-patch repodata document for one subdir from the
// cache store's indexed_packages view. Legacy-extension archives land under
// Packages; the newer extension lands under PackagesConda, per spec §4.5.
func Snapshot(subdir, baseURL string, indexed []cachestore.IndexedPackage) (Repodata, error) {
	rd := newRepodata(subdir, baseURL)
	for _, pkg := range indexed {
		var rec Record
		if err := json.Unmarshal(pkg.IndexJSON, &rec); err != nil {
			return Repodata{}, errors.Wrapf(err, "parsing cached index.json for %s", pkg.Path)
		}
		switch archive.DetectFormat(pkg.Path) {
		case archive.CondaFormat:
			rd.PackagesConda[pkg.Path] = rec
		case archive.TarBz2Format:
			rd.Packages[pkg.Path] = rec
		default:
			// Stale rows from a path no longer matching a recognized
			// extension (e.g. after a format is deprecated) are silently
			// excluded from emission; the fs stage is the only source of
			// truth for what's a package.
		}
	}
	return rd, nil
}
