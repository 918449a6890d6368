package repodata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/cachestore"
)

// ChanneldataPackage is one package name's aggregate entry in channeldata.json.
type ChanneldataPackage struct {
	Version     string          `json:"version,omitempty"`
	Subdirs     []string        `json:"subdirs"`
	RunExports  json.RawMessage `json:"run_exports,omitempty"`
	Home        string          `json:"home,omitempty"`
	License     string          `json:"license,omitempty"`
	Summary     string          `json:"summary,omitempty"`
	Description string          `json:"description,omitempty"`
	Source      string          `json:"source_url,omitempty"`
	IconURL     string          `json:"icon_url,omitempty"`
	IconHash    string          `json:"icon_hash,omitempty"`
	Identifiers json.RawMessage `json:"identifiers,omitempty"`
}

// Channeldata is the channel-root channeldata.json document.
type Channeldata struct {
	ChanneldataVersion int                            `json:"channeldata_version"`
	Subdirs            []string                        `json:"subdirs"`
	Packages           map[string]ChanneldataPackage   `json:"packages"`
}

const channeldataVersion = 1

// aboutFields is the subset of info/about.json this package reads.
type aboutFields struct {
	Home        string          `json:"home"`
	License     string          `json:"license"`
	Summary     string          `json:"summary"`
	Description string          `json:"description"`
	Source      string          `json:"source_url"`
	Identifiers json.RawMessage `json:"identifiers"`
}

// SubdirInputs pairs one subdir's name with its channeldata-relevant rows.
type SubdirInputs struct {
	Subdir string
	Inputs []cachestore.ChanneldataInput
}

// BuildChanneldata aggregates per-package-name summaries across every
// subdir's indexed packages: latest version, subdirs set, run_exports from
// the latest build, and about-derived fields from whichever subdir holds
// the latest build.
func BuildChanneldata(perSubdir []SubdirInputs) (Channeldata, error) {
	cd := Channeldata{ChanneldataVersion: channeldataVersion, Packages: map[string]ChanneldataPackage{}}
	subdirSet := map[string]bool{}

	type best struct {
		rec        Record
		input      cachestore.ChanneldataInput
		subdir     string
	}
	latest := map[string]best{}

	for _, sd := range perSubdir {
		subdirSet[sd.Subdir] = true
		for _, in := range sd.Inputs {
			var rec Record
			if err := json.Unmarshal(in.IndexJSON, &rec); err != nil {
				return Channeldata{}, errors.Wrapf(err, "parsing index.json for %s/%s", sd.Subdir, in.Path)
			}
			name := rec.Name()
			if name == "" {
				continue
			}
			cur, ok := latest[name]
			if !ok || isNewer(rec, cur.rec) {
				latest[name] = best{rec: rec, input: in, subdir: sd.Subdir}
			}
		}
	}

	bySubdirs := map[string]map[string]bool{}
	for _, sd := range perSubdir {
		for _, in := range sd.Inputs {
			var rec Record
			if err := json.Unmarshal(in.IndexJSON, &rec); err != nil {
				continue
			}
			name := rec.Name()
			if name == "" {
				continue
			}
			if bySubdirs[name] == nil {
				bySubdirs[name] = map[string]bool{}
			}
			bySubdirs[name][sd.Subdir] = true
		}
	}

	for name, b := range latest {
		subdirs := make([]string, 0, len(bySubdirs[name]))
		for s := range bySubdirs[name] {
			subdirs = append(subdirs, s)
		}
		sort.Strings(subdirs)

		pkg := ChanneldataPackage{
			Version: b.rec.Version(),
			Subdirs: subdirs,
		}
		if len(b.input.RunExports) > 0 {
			pkg.RunExports = b.input.RunExports
		}
		if len(b.input.About) > 0 {
			var about aboutFields
			if err := json.Unmarshal(b.input.About, &about); err == nil {
				pkg.Home = about.Home
				pkg.License = about.License
				pkg.Summary = about.Summary
				pkg.Description = about.Description
				pkg.Source = about.Source
				pkg.Identifiers = about.Identifiers
			}
		}
		if len(b.input.Icon) > 0 {
			sum := sha256.Sum256(b.input.Icon)
			pkg.IconHash = "sha256:" + hex.EncodeToString(sum[:])
			pkg.IconURL = name + "/icon.png"
		}
		cd.Packages[name] = pkg
	}

	for s := range subdirSet {
		cd.Subdirs = append(cd.Subdirs, s)
	}
	sort.Strings(cd.Subdirs)
	return cd, nil
}

// EmitChanneldata writes channeldata.json at the channel root.
func EmitChanneldata(channelRoot string, cd Channeldata) error {
	return writeDoc(filepath.Join(channelRoot, "channeldata.json"), cd)
}
