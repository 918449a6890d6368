package repodata

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/archive"
	"github.com/conda-forge/conda-index-go/internal/cachestore"
)

// RunExportsDoc is the per-subdir run_exports.json shape.
type RunExportsDoc struct {
	Info          Info                       `json:"info"`
	Packages      map[string]json.RawMessage `json:"packages"`
	PackagesConda map[string]json.RawMessage `json:"packages.conda"`
}

// BuildRunExports fetches the run_exports blob for every indexed package
// that has one and assembles the per-subdir document.
func BuildRunExports(ctx context.Context, store runExportsStore, subdir string, indexed []cachestore.IndexedPackage) (RunExportsDoc, error) {
	doc := RunExportsDoc{
		Info:          Info{Subdir: subdir},
		Packages:      map[string]json.RawMessage{},
		PackagesConda: map[string]json.RawMessage{},
	}
	for _, pkg := range indexed {
		raw, err := store.RunExportsFor(ctx, pkg.Path)
		if err != nil {
			return RunExportsDoc{}, errors.Wrapf(err, "fetching run_exports for %s", pkg.Path)
		}
		if raw == nil {
			continue
		}
		switch archive.DetectFormat(pkg.Path) {
		case archive.CondaFormat:
			doc.PackagesConda[pkg.Path] = raw
		case archive.TarBz2Format:
			doc.Packages[pkg.Path] = raw
		}
	}
	return doc, nil
}

// runExportsStore abstracts the one cache-store query BuildRunExports
// needs, so tests can supply a fake without standing up a real Store.
type runExportsStore interface {
	RunExportsFor(ctx context.Context, path string) ([]byte, error)
}

// EmitRunExports writes run_exports.json.
func EmitRunExports(subdirOutputDir string, doc RunExportsDoc) error {
	return writeDoc(filepath.Join(subdirOutputDir, "run_exports.json"), doc)
}
