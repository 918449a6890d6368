package repodata

import (
	"encoding/json"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/atomicfile"
)

// EmitPatched writes repodata.json, the primary artifact. JSON is compact by
// default, matching encoding/json.Marshal's default behavior; floats never
// appear in well-formed records since the extractor only ever writes
// integer size/build_number fields. Callers that could not obtain a valid
// patched document (patch-malformed, per spec §7: fatal to this subdir's
// patched emission only) write repodata_from_packages.json via
// EmitFromPackages and skip this call.
func EmitPatched(subdirOutputDir string, patched Repodata) error {
	return errors.Wrap(writeDoc(filepath.Join(subdirOutputDir, "repodata.json"), patched), "writing repodata.json")
}

// EmitFromPackages writes only repodata_from_packages.json, the pre-patch
// counterpart that must survive even when patching fails.
func EmitFromPackages(subdirOutputDir string, prePatch Repodata) error {
	return errors.Wrap(writeDoc(filepath.Join(subdirOutputDir, "repodata_from_packages.json"), prePatch), "writing repodata_from_packages.json")
}

func writeDoc(path string, doc any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", path)
	}
	return atomicfile.Write(path, data, 0o644)
}
