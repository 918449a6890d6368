package extract

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// postInstallVersion tags the shape of the derived post_install record so a
// future change to the categorization rules below can be detected by
// consumers that cached an older version.
const postInstallVersion = 1

// pathsEntry mirrors the subset of one info/paths.json entry this package
// reads. The full schema carries more fields (path_type, size_in_bytes,
// sha256, no_link); none of those are needed to derive post_install, so they
// are not modeled here and paths.json itself is discarded once this struct
// is populated.
type pathsEntry struct {
	Path      string `json:"_path"`
	FileMode  string `json:"file_mode"`
	PrefixPlaceholder string `json:"prefix_placeholder"`
}

type pathsJSON struct {
	Paths []pathsEntry `json:"paths"`
}

// PostInstall is the derived record cached in place of the raw paths.json
// the extractor is forbidden from storing.
type PostInstall struct {
	PostInstallVersion int      `json:"post_install_version"`
	BinaryHasPrefix    []string `json:"binary_has_prefix,omitempty"`
	TextHasPrefix      []string `json:"text_has_prefix,omitempty"`
	ActivateScripts    []string `json:"activate_scripts,omitempty"`
	DeactivateScripts  []string `json:"deactivate_scripts,omitempty"`
	PostLinkScripts    []string `json:"post_link_scripts,omitempty"`
	PreUnlinkScripts   []string `json:"pre_unlink_scripts,omitempty"`
}

// derivePostInstall categorizes the entries of a raw info/paths.json blob.
// Entries that match none of the recognized categories are dropped; only
// the categorized subset is ever persisted.
func derivePostInstall(rawPathsJSON []byte) (PostInstall, error) {
	var parsed pathsJSON
	if err := json.Unmarshal(rawPathsJSON, &parsed); err != nil {
		return PostInstall{}, errors.Wrap(err, "parsing paths.json")
	}
	out := PostInstall{PostInstallVersion: postInstallVersion}
	for _, e := range parsed.Paths {
		switch {
		case e.FileMode == "binary" && e.PrefixPlaceholder != "":
			out.BinaryHasPrefix = append(out.BinaryHasPrefix, e.Path)
		case e.FileMode == "text" && e.PrefixPlaceholder != "":
			out.TextHasPrefix = append(out.TextHasPrefix, e.Path)
		case matchesScriptDir(e.Path, "etc/conda/activate.d/"):
			out.ActivateScripts = append(out.ActivateScripts, e.Path)
		case matchesScriptDir(e.Path, "etc/conda/deactivate.d/"):
			out.DeactivateScripts = append(out.DeactivateScripts, e.Path)
		case isPostLinkScript(e.Path):
			out.PostLinkScripts = append(out.PostLinkScripts, e.Path)
		case isPreUnlinkScript(e.Path):
			out.PreUnlinkScripts = append(out.PreUnlinkScripts, e.Path)
		}
	}
	sort.Strings(out.BinaryHasPrefix)
	sort.Strings(out.TextHasPrefix)
	sort.Strings(out.ActivateScripts)
	sort.Strings(out.DeactivateScripts)
	sort.Strings(out.PostLinkScripts)
	sort.Strings(out.PreUnlinkScripts)
	return out, nil
}

func matchesScriptDir(path, dir string) bool {
	return strings.HasPrefix(path, dir) && strings.HasSuffix(path, ".sh")
}

func isPostLinkScript(path string) bool {
	base := path[strings.LastIndexByte(path, '/')+1:]
	return strings.HasPrefix(base, "post-link.") || strings.HasPrefix(base, ".post-link.")
}

func isPreUnlinkScript(path string) bool {
	base := path[strings.LastIndexByte(path, '/')+1:]
	return strings.HasPrefix(base, "pre-unlink.") || strings.HasPrefix(base, ".pre-unlink.")
}
