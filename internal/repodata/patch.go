package repodata

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrPatchMalformed marks a patch document the assembler could not parse;
// per spec §7 this is fatal to the subdir's patched emission only —
// repodata_from_packages.json is still written from the unpatched snapshot.
var ErrPatchMalformed = errors.New("patch document malformed")

// PatchDocument is what a patch generator returns for one subdir's
// pre-patch repodata.
type PatchDocument struct {
	PatchInstructionsVersion int               `json:"patch_instructions_version"`
	Packages                 map[string]Record `json:"packages"`
	PackagesConda            map[string]Record `json:"packages.conda"`
	Revoke                   []string          `json:"revoke"`
	Remove                   []string          `json:"remove"`
}

// Generator produces a patch document for a subdir, given its pre-patch
// repodata. The loader that turns a configured spec into a Generator (e.g.
// unpacking a patch-instructions package archive) lives outside this
// package, per spec §9 ("Patch generators").
type Generator func(pre Repodata) (PatchDocument, error)

// revokedDependency is appended to a revoked record's depends list so
// resolvers see it as unsatisfiable, per spec §4.5 step 2.
const revokedDependency = "package_has_been_revoked"

// ApplyPatch deep-merges patch into pre, returning the patched document.
// pre is never mutated. Scalar fields in per-record patches replace the
// pre-patch value; list fields (e.g. depends) replace wholesale, they are
// not concatenated.
func ApplyPatch(pre Repodata, patch PatchDocument) (Repodata, error) {
	post := Repodata{
		RepodataVersion: pre.RepodataVersion,
		Info:            pre.Info,
		Packages:        mergeGroup(pre.Packages, patch.Packages),
		PackagesConda:   mergeGroup(pre.PackagesConda, patch.PackagesConda),
		Removed:         append([]string{}, pre.Removed...),
	}

	for _, name := range patch.Revoke {
		revokeIn(post.Packages, name)
		revokeIn(post.PackagesConda, name)
	}
	for _, name := range patch.Remove {
		if removeIn(post.Packages, name) || removeIn(post.PackagesConda, name) {
			post.Removed = append(post.Removed, name)
		}
	}
	return post, nil
}

func mergeGroup(base, patch map[string]Record) map[string]Record {
	out := make(map[string]Record, len(base))
	for k, v := range base {
		out[k] = v
	}
	for basename, recordPatch := range patch {
		existing, ok := out[basename]
		if !ok {
			out[basename] = recordPatch
			continue
		}
		out[basename] = deepMergeRecord(existing, recordPatch)
	}
	return out
}

// deepMergeRecord applies a per-field patch on top of an existing record:
// every key present in patch overwrites the corresponding key in base
// (scalars and lists alike replace, they are never concatenated); keys
// absent from patch are left untouched.
func deepMergeRecord(base, patch Record) Record {
	out := make(Record, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

func revokeIn(group map[string]Record, basename string) {
	rec, ok := group[basename]
	if !ok {
		return
	}
	var deps []string
	if raw, ok := rec["depends"]; ok {
		_ = json.Unmarshal(raw, &deps)
	}
	deps = append(deps, revokedDependency)
	encoded, err := json.Marshal(deps)
	if err != nil {
		return
	}
	updated := make(Record, len(rec))
	for k, v := range rec {
		updated[k] = v
	}
	updated["depends"] = encoded
	group[basename] = updated
}

func removeIn(group map[string]Record, basename string) bool {
	if _, ok := group[basename]; !ok {
		return false
	}
	delete(group, basename)
	return true
}

// ParsePatchDocument decodes a raw JSON patch document, used when a patch
// generator is loaded as an external process that writes JSON to stdout
// rather than a Go callable.
func ParsePatchDocument(raw []byte) (PatchDocument, error) {
	var doc PatchDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return PatchDocument{}, errors.Wrap(ErrPatchMalformed, err.Error())
	}
	return doc, nil
}
