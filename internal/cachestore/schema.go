package cachestore

// schemaVersion is bumped whenever a migration below adds to the schema.
const schemaVersion = 1

var payloadTables = []string{"index_json", "about", "recipe", "recipe_log", "run_exports", "post_install", "icon"}

// sqliteSchema and postgresSchema lay out identical columns; they differ
// only in the blob/float type keywords each engine recognizes. Every table
// is keyed by (prefix, subdir, path) even on the embedded backend (where
// prefix is always "") so a single set of queries works unmodified against
// either backend.
const sqliteSchemaTemplate = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stat (
	prefix TEXT NOT NULL,
	subdir TEXT NOT NULL,
	stage TEXT NOT NULL,
	path TEXT NOT NULL,
	mtime REAL NOT NULL,
	size INTEGER NOT NULL,
	sha256 TEXT,
	md5 TEXT,
	http_last_modified TEXT,
	http_etag TEXT,
	PRIMARY KEY (prefix, subdir, stage, path)
);
CREATE INDEX IF NOT EXISTS stat_by_path ON stat (prefix, subdir, path);

CREATE TABLE IF NOT EXISTS %s (
	prefix TEXT NOT NULL,
	subdir TEXT NOT NULL,
	path TEXT NOT NULL,
	body BLOB NOT NULL,
	PRIMARY KEY (prefix, subdir, path)
);
`

const postgresSchemaTemplate = `
CREATE TABLE IF NOT EXISTS schema_meta (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS stat (
	prefix TEXT NOT NULL,
	subdir TEXT NOT NULL,
	stage TEXT NOT NULL,
	path TEXT NOT NULL,
	mtime DOUBLE PRECISION NOT NULL,
	size BIGINT NOT NULL,
	sha256 TEXT,
	md5 TEXT,
	http_last_modified TEXT,
	http_etag TEXT,
	PRIMARY KEY (prefix, subdir, stage, path)
);
CREATE INDEX IF NOT EXISTS stat_by_path ON stat (prefix, subdir, path);

CREATE TABLE IF NOT EXISTS %s (
	prefix TEXT NOT NULL,
	subdir TEXT NOT NULL,
	path TEXT NOT NULL,
	body BYTEA NOT NULL,
	PRIMARY KEY (prefix, subdir, path)
);
`
