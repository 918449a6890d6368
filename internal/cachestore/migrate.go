package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// migrate creates the schema if missing and runs any idempotent upgrades.
// It never drops data; every statement is additive (CREATE TABLE/INDEX IF
// NOT EXISTS), matching the spec's requirement that a failed conversion
// leaves the database absent for the caller to retry rather than partially
// migrated.
func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	tmpl := sqliteSchemaTemplate
	if d.name == "postgres" {
		tmpl = postgresSchemaTemplate
	}
	var stmts []string
	for _, part := range strings.Split(tmpl, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		stmts = append(stmts, part)
	}
	// The template has one "%s" placeholder (the payload table name);
	// everything else is shared. Substitute it for each payload table.
	var fullStmts []string
	for _, stmt := range stmts {
		if strings.Contains(stmt, "%s") {
			for _, table := range payloadTables {
				fullStmts = append(fullStmts, fmt.Sprintf(stmt, table))
			}
		} else {
			fullStmts = append(fullStmts, stmt)
		}
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning migration transaction")
	}
	defer tx.Rollback()
	for _, stmt := range fullStmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "running migration statement: %s", stmt)
		}
	}
	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_meta").Scan(&count); err != nil {
		return errors.Wrap(err, "checking schema_meta")
	}
	if count == 0 {
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_meta (version) VALUES ("+d.placeholder(1)+")", schemaVersion); err != nil {
			return errors.Wrap(err, "seeding schema_meta")
		}
	}
	return errors.Wrap(tx.Commit(), "committing migration")
}
