package cachestore

import (
	"fmt"
	"strconv"
	"strings"
)

// dialect isolates the handful of SQL differences between the embedded
// SQLite backend and the shared Postgres backend so the rest of the package
// writes one set of queries.
type dialect struct {
	name       string
	driverName string
	// placeholder returns the bind-parameter token for the nth (1-based)
	// parameter in a query.
	placeholder func(n int) string
	// upsertSuffix returns the "ON CONFLICT ... DO UPDATE" clause for an
	// upsert into table keyed by keyCols, setting setCols.
	upsertSuffix func(table string, keyCols, setCols []string) string
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

var sqliteDialect = dialect{
	name:        "sqlite",
	driverName:  "sqlite",
	placeholder: questionMark,
	upsertSuffix: func(table string, keyCols, setCols []string) string {
		return sqliteOrPostgresConflictClause(keyCols, setCols)
	},
}

var postgresDialect = dialect{
	name:        "postgres",
	driverName:  "pgx",
	placeholder: dollar,
	upsertSuffix: func(table string, keyCols, setCols []string) string {
		return sqliteOrPostgresConflictClause(keyCols, setCols)
	},
}

// sqliteOrPostgresConflictClause builds the standard "INSERT ... ON CONFLICT
// (keyCols) DO UPDATE SET col=excluded.col" tail; SQLite (3.24+) and Postgres
// both support this syntax, so one implementation covers both dialects.
func sqliteOrPostgresConflictClause(keyCols, setCols []string) string {
	clause := "ON CONFLICT ("
	for i, c := range keyCols {
		if i > 0 {
			clause += ", "
		}
		clause += c
	}
	clause += ") DO UPDATE SET "
	for i, c := range setCols {
		if i > 0 {
			clause += ", "
		}
		clause += fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return clause
}

// rewritePlaceholders rewrites a query written with Postgres-style $N
// placeholders into d's native placeholder syntax. Postgres queries pass
// through unchanged; SQLite queries are rewritten to positional "?" markers.
func rewritePlaceholders(query string, d dialect) string {
	if d.name == "postgres" {
		return query
	}
	var b strings.Builder
	for i := 0; i < len(query); i++ {
		if query[i] == '$' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			if j > i+1 {
				if _, err := strconv.Atoi(query[i+1 : j]); err == nil {
					b.WriteString(d.placeholder(0))
					i = j - 1
					continue
				}
			}
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
