// Package cachestore is the durable, per-subdir keyed cache (component C2):
// a stat table tracking "fs" (upstream) and "indexed" fingerprints per
// archive path, plus one payload table per extracted metadata kind. It
// abstracts over two backends — an embedded SQLite file and a shared
// relational server — behind a single database/sql-based interface so the
// rest of the pipeline never needs to know which is in use.
package cachestore

// StageFS is the built-in stage name for the filesystem probe's view.
const StageFS = "fs"

// StageIndexed is the built-in stage name for successfully extracted
// metadata's fingerprint.
const StageIndexed = "indexed"

// Stat is one (stage, path) fingerprint row.
type Stat struct {
	Stage             string
	Path              string
	Mtime             float64
	Size              int64
	SHA256            string
	MD5               string
	HTTPLastModified  string
	HTTPETag          string
}

// Payload holds the extracted metadata for one archive, keyed by table name.
// Any field left nil is simply not written for that path.
type Payload struct {
	IndexJSON   []byte
	About       []byte
	Recipe      []byte
	RecipeLog   []byte
	RunExports  []byte
	PostInstall []byte
	Icon        []byte
}

// IndexedPackage is one row of the join of fs and index_json used to drive
// repodata emission.
type IndexedPackage struct {
	Path      string
	IndexJSON []byte
}

// ChanneldataInput is the per-path projection needed to build channeldata.json.
type ChanneldataInput struct {
	Path        string
	About       []byte
	IndexJSON   []byte
	Recipe      []byte
	PostInstall []byte
	Icon        []byte
	RunExports  []byte
}
