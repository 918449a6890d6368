package cachestore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// sidecarFile records the channel_prefix a shared server backend assigned to
// this channel root, so repeated runs against the same directory reuse the
// same cache rows instead of minting a new prefix each time.
const sidecarFile = "cache.json"

type sidecar struct {
	ChannelPrefix string `json:"channel_prefix"`
}

// OpenServer opens a Store backed by a shared Postgres-compatible server at
// dsn, scoping all rows to channelRoot via a channel_prefix derived from
// channelRoot's absolute path, so multiple channels can share one database.
func OpenServer(ctx context.Context, dsn, channelRoot, subdir string) (*Store, error) {
	prefix, err := channelPrefixFor(channelRoot)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(postgresDialect.driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening server cache connection")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "connecting to server cache")
	}

	if err := migrate(ctx, db, postgresDialect); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating server cache")
	}

	return &Store{
		db:     db,
		d:      postgresDialect,
		prefix: prefix,
		subdir: subdir,
	}, nil
}

// channelPrefixFor reads channelRoot's cache.json sidecar if present, or
// mints and persists a new prefix derived from the channel's absolute path.
func channelPrefixFor(channelRoot string) (string, error) {
	path := filepath.Join(channelRoot, sidecarFile)
	if data, err := os.ReadFile(path); err == nil {
		var sc sidecar
		if err := json.Unmarshal(data, &sc); err != nil {
			return "", errors.Wrapf(err, "parsing %s", path)
		}
		if sc.ChannelPrefix != "" {
			return sc.ChannelPrefix, nil
		}
	} else if !os.IsNotExist(err) {
		return "", errors.Wrapf(err, "reading %s", path)
	}

	abs, err := filepath.Abs(channelRoot)
	if err != nil {
		return "", errors.Wrapf(err, "resolving absolute path of %s", channelRoot)
	}
	sum := sha256.Sum256([]byte(abs))
	prefix := hex.EncodeToString(sum[:])[:16]

	data, err := json.MarshalIndent(sidecar{ChannelPrefix: prefix}, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "encoding cache sidecar")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	return prefix, nil
}
