package repodata

import "path/filepath"

// entry pairs a record with where it lives in a repodata document, so the
// closure walk below can route a kept record back into the right group.
type entry struct {
	basename string
	group    string // "packages" or "packages.conda"
	rec      Record
}

// CurrentSubset derives current_repodata.json from a patched repodata
// document: for each package name, keep only the records belonging to the
// maximum (version, build_number, build string) triple, plus every package
// transitively depended on by one of those records.
func CurrentSubset(rd Repodata) Repodata {
	byName := map[string][]entry{}
	all := map[string]entry{}
	for basename, rec := range rd.Packages {
		e := entry{basename: basename, group: "packages", rec: rec}
		byName[rec.Name()] = append(byName[rec.Name()], e)
		all[basename] = e
	}
	for basename, rec := range rd.PackagesConda {
		e := entry{basename: basename, group: "packages.conda", rec: rec}
		byName[rec.Name()] = append(byName[rec.Name()], e)
		all[basename] = e
	}

	keep := map[string]bool{}
	var queue []string
	for _, entries := range byName {
		best, ok := latestEntry(entries)
		if !ok {
			continue
		}
		if !keep[best.basename] {
			keep[best.basename] = true
			queue = append(queue, best.basename)
		}
	}

	// Closure over recursive dependencies: a kept record pulls in every
	// package name it depends on, preferring that name's own latest build
	// (mirroring how a resolver would actually pick a dependency) when one
	// exists in this subdir.
	for len(queue) > 0 {
		basename := queue[0]
		queue = queue[1:]
		e, ok := all[basename]
		if !ok {
			continue
		}
		for _, depName := range e.rec.DependsNames() {
			candidates := byName[depName]
			if len(candidates) == 0 {
				continue
			}
			dep, ok := latestEntry(candidates)
			if !ok || keep[dep.basename] {
				continue
			}
			keep[dep.basename] = true
			queue = append(queue, dep.basename)
		}
	}

	out := newRepodata(rd.Info.Subdir, rd.Info.BaseURL)
	out.RepodataVersion = rd.RepodataVersion
	for basename := range keep {
		e := all[basename]
		switch e.group {
		case "packages":
			out.Packages[basename] = e.rec
		case "packages.conda":
			out.PackagesConda[basename] = e.rec
		}
	}
	return out
}

func latestEntry(entries []entry) (entry, bool) {
	if len(entries) == 0 {
		return entry{}, false
	}
	best := entries[0]
	for _, e := range entries[1:] {
		if isNewer(e.rec, best.rec) {
			best = e
		}
	}
	return best, true
}

// isNewer reports whether a's (version, build_number, build string) triple
// outranks b's.
func isNewer(a, b Record) bool {
	if c := compareVersions(a.Version(), b.Version()); c != 0 {
		return c > 0
	}
	if a.BuildNumber() != b.BuildNumber() {
		return a.BuildNumber() > b.BuildNumber()
	}
	return a.Build() > b.Build()
}

// EmitCurrent writes current_repodata.json.
func EmitCurrent(subdirOutputDir string, rd Repodata) error {
	return writeDoc(filepath.Join(subdirOutputDir, "current_repodata.json"), rd)
}
