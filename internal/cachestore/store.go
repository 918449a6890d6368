package cachestore

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Store is a handle onto one subdir's cache, regardless of backend.
type Store struct {
	db      *sql.DB
	d       dialect
	prefix  string
	subdir  string
	locker  *fileLocker // nil for the server backend
	closeDB func() error
}

// Close flushes and releases the handle, including the advisory lock if one
// is held.
func (s *Store) Close() error {
	var lockErr error
	if s.locker != nil {
		lockErr = s.locker.Unlock()
	}
	var dbErr error
	if s.closeDB != nil {
		dbErr = s.closeDB()
	} else {
		dbErr = s.db.Close()
	}
	if dbErr != nil {
		return errors.Wrap(dbErr, "closing cache database")
	}
	return errors.Wrap(lockErr, "releasing cache lock")
}

// SaveFSState atomically replaces the entire "fs" stage for this subdir: rows
// missing from stats are deleted, present rows are upserted. This is the
// sole write path for the filesystem probe (C3).
func (s *Store) SaveFSState(ctx context.Context, stats []Stat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning fs-state transaction")
	}
	defer tx.Rollback()

	keep := make(map[string]bool, len(stats))
	for _, st := range stats {
		keep[st.Path] = true
	}

	rows, err := tx.QueryContext(ctx, s.q(`SELECT path FROM stat WHERE prefix = $1 AND subdir = $2 AND stage = $3`), s.prefix, s.subdir, StageFS)
	if err != nil {
		return errors.Wrap(err, "listing existing fs rows")
	}
	var existing []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return errors.Wrap(err, "scanning existing fs row")
		}
		existing = append(existing, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "iterating existing fs rows")
	}

	for _, p := range existing {
		if !keep[p] {
			if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM stat WHERE prefix = $1 AND subdir = $2 AND stage = $3 AND path = $4`),
				s.prefix, s.subdir, StageFS, p); err != nil {
				return errors.Wrapf(err, "deleting stale fs row %s", p)
			}
		}
	}

	upsert := s.q(`INSERT INTO stat (prefix, subdir, stage, path, mtime, size, sha256, md5, http_last_modified, http_etag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ` +
		s.d.upsertSuffix("stat", []string{"prefix", "subdir", "stage", "path"}, []string{"mtime", "size", "sha256", "md5", "http_last_modified", "http_etag"}))
	for _, st := range stats {
		if _, err := tx.ExecContext(ctx, upsert, s.prefix, s.subdir, StageFS, st.Path, st.Mtime, st.Size,
			nullable(st.SHA256), nullable(st.MD5), nullable(st.HTTPLastModified), nullable(st.HTTPETag)); err != nil {
			return errors.Wrapf(err, "upserting fs row %s", st.Path)
		}
	}
	return errors.Wrap(tx.Commit(), "committing fs-state transaction")
}

// ChangedPaths yields basenames where the fs fingerprint differs from the
// indexed fingerprint on (mtime, size), or no indexed row exists at all.
func (s *Store) ChangedPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT f.path FROM stat f
		LEFT JOIN stat i ON i.prefix = f.prefix AND i.subdir = f.subdir AND i.stage = $1 AND i.path = f.path
		WHERE f.prefix = $2 AND f.subdir = $3 AND f.stage = $4
		  AND (i.path IS NULL OR i.mtime != f.mtime OR i.size != f.size)
	`), StageIndexed, s.prefix, s.subdir, StageFS)
	if err != nil {
		return nil, errors.Wrap(err, "querying changed paths")
	}
	defer rows.Close()
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, errors.Wrap(err, "scanning changed path")
		}
		paths = append(paths, p)
	}
	return paths, errors.Wrap(rows.Err(), "iterating changed paths")
}

// StorePayload inserts/replaces payload rows for path across every non-nil
// table in payload, then upserts the indexed stat row with fingerprint, all
// within one transaction.
func (s *Store) StorePayload(ctx context.Context, path string, fingerprint Stat, payload Payload) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning store transaction")
	}
	defer tx.Rollback()

	tables := map[string][]byte{
		"index_json":   payload.IndexJSON,
		"about":        payload.About,
		"recipe":       payload.Recipe,
		"recipe_log":   payload.RecipeLog,
		"run_exports":  payload.RunExports,
		"post_install": payload.PostInstall,
		"icon":         payload.Icon,
	}
	for table, body := range tables {
		if body == nil {
			continue
		}
		stmt := s.q(`INSERT INTO ` + table + ` (prefix, subdir, path, body) VALUES ($1, $2, $3, $4) ` +
			s.d.upsertSuffix(table, []string{"prefix", "subdir", "path"}, []string{"body"}))
		if _, err := tx.ExecContext(ctx, stmt, s.prefix, s.subdir, path, body); err != nil {
			return errors.Wrapf(err, "storing %s payload for %s", table, path)
		}
	}

	upsertStat := s.q(`INSERT INTO stat (prefix, subdir, stage, path, mtime, size, sha256, md5, http_last_modified, http_etag)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) ` +
		s.d.upsertSuffix("stat", []string{"prefix", "subdir", "stage", "path"}, []string{"mtime", "size", "sha256", "md5", "http_last_modified", "http_etag"}))
	if _, err := tx.ExecContext(ctx, upsertStat, s.prefix, s.subdir, StageIndexed, path, fingerprint.Mtime, fingerprint.Size,
		nullable(fingerprint.SHA256), nullable(fingerprint.MD5), nullable(fingerprint.HTTPLastModified), nullable(fingerprint.HTTPETag)); err != nil {
		return errors.Wrapf(err, "upserting indexed stat row for %s", path)
	}
	return errors.Wrap(tx.Commit(), "committing store transaction")
}

// IndexedPackages yields (path, index_json) for every path present in both
// fs and index_json — the set that contributes to repodata.json.
func (s *Store) IndexedPackages(ctx context.Context) ([]IndexedPackage, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT f.path, ij.body FROM stat f
		JOIN index_json ij ON ij.prefix = f.prefix AND ij.subdir = f.subdir AND ij.path = f.path
		WHERE f.prefix = $1 AND f.subdir = $2 AND f.stage = $3
	`), s.prefix, s.subdir, StageFS)
	if err != nil {
		return nil, errors.Wrap(err, "querying indexed packages")
	}
	defer rows.Close()
	var out []IndexedPackage
	for rows.Next() {
		var ip IndexedPackage
		if err := rows.Scan(&ip.Path, &ip.IndexJSON); err != nil {
			return nil, errors.Wrap(err, "scanning indexed package")
		}
		out = append(out, ip)
	}
	return out, errors.Wrap(rows.Err(), "iterating indexed packages")
}

// RunExportsFor fetches the raw run_exports blob for path, or nil if absent.
func (s *Store) RunExportsFor(ctx context.Context, path string) ([]byte, error) {
	var body []byte
	err := s.db.QueryRowContext(ctx, s.q(`SELECT body FROM run_exports WHERE prefix = $1 AND subdir = $2 AND path = $3`),
		s.prefix, s.subdir, path).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return body, errors.Wrap(err, "fetching run_exports")
}

// ChanneldataInputs yields the per-path projection needed for channeldata.json.
func (s *Store) ChanneldataInputs(ctx context.Context) ([]ChanneldataInput, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT f.path, ij.body, a.body, r.body, p.body, i.body, re.body
		FROM stat f
		JOIN index_json ij ON ij.prefix = f.prefix AND ij.subdir = f.subdir AND ij.path = f.path
		LEFT JOIN about a ON a.prefix = f.prefix AND a.subdir = f.subdir AND a.path = f.path
		LEFT JOIN recipe r ON r.prefix = f.prefix AND r.subdir = f.subdir AND r.path = f.path
		LEFT JOIN post_install p ON p.prefix = f.prefix AND p.subdir = f.subdir AND p.path = f.path
		LEFT JOIN icon i ON i.prefix = f.prefix AND i.subdir = f.subdir AND i.path = f.path
		LEFT JOIN run_exports re ON re.prefix = f.prefix AND re.subdir = f.subdir AND re.path = f.path
		WHERE f.prefix = $1 AND f.subdir = $2 AND f.stage = $3
	`), s.prefix, s.subdir, StageFS)
	if err != nil {
		return nil, errors.Wrap(err, "querying channeldata inputs")
	}
	defer rows.Close()
	var out []ChanneldataInput
	for rows.Next() {
		var ci ChanneldataInput
		if err := rows.Scan(&ci.Path, &ci.IndexJSON, &ci.About, &ci.Recipe, &ci.PostInstall, &ci.Icon, &ci.RunExports); err != nil {
			return nil, errors.Wrap(err, "scanning channeldata input")
		}
		out = append(out, ci)
	}
	return out, errors.Wrap(rows.Err(), "iterating channeldata inputs")
}

// q rewrites a query written with $1, $2, ... placeholders into the active
// dialect's placeholder syntax.
func (s *Store) q(query string) string {
	return rewritePlaceholders(query, s.d)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
