// Package repodata implements the repodata assembler (component C5): it
// snapshots the cache store's indexed packages into the repodata.json
// document shape, applies an external patch document, and derives
// current_repodata.json, run_exports.json, and channeldata.json from the
// same in-memory snapshot.
package repodata

import "encoding/json"

// Record is one package's entry in repodata.json, decoded loosely enough to
// support patching and closure computation while preserving every field the
// archive's index.json carried (including ones this package never reads).
type Record map[string]json.RawMessage

func (r Record) str(key string) string {
	var s string
	if raw, ok := r[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// Name is the package name field.
func (r Record) Name() string { return r.str("name") }

// Version is the package version field.
func (r Record) Version() string { return r.str("version") }

// Build is the package build string field.
func (r Record) Build() string { return r.str("build") }

// BuildNumber is the package build_number field.
func (r Record) BuildNumber() int64 {
	var n int64
	if raw, ok := r["build_number"]; ok {
		_ = json.Unmarshal(raw, &n)
	}
	return n
}

// Depends lists the package's dependency specs ("name constraint").
func (r Record) Depends() []string {
	var deps []string
	if raw, ok := r["depends"]; ok {
		_ = json.Unmarshal(raw, &deps)
	}
	return deps
}

// DependsNames returns just the package-name portion of each dependency spec.
func (r Record) DependsNames() []string {
	var names []string
	for _, d := range r.Depends() {
		i := 0
		for i < len(d) && d[i] != ' ' {
			i++
		}
		names = append(names, d[:i])
	}
	return names
}

// Info is the repodata.json "info" header.
type Info struct {
	Subdir  string `json:"subdir"`
	BaseURL string `json:"base_url,omitempty"`
}

// Repodata is the full document shape written to repodata.json and
// repodata_from_packages.json.
type Repodata struct {
	RepodataVersion int               `json:"repodata_version"`
	Info            Info              `json:"info"`
	Packages        map[string]Record `json:"packages"`
	PackagesConda   map[string]Record `json:"packages.conda"`
	Removed         []string          `json:"removed"`
}

// newRepodata builds an empty document with deterministic empty collections
// (never nil, so they marshal as {} / [] rather than null).
func newRepodata(subdir, baseURL string) Repodata {
	version := 1
	if baseURL != "" {
		version = 2
	}
	return Repodata{
		RepodataVersion: version,
		Info:            Info{Subdir: subdir, BaseURL: baseURL},
		Packages:        map[string]Record{},
		PackagesConda:   map[string]Record{},
		Removed:         []string{},
	}
}
