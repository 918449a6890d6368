// Package shard implements the shard emitter (component C6): it partitions
// a patched repodata document by package name into content-addressed,
// zstd-compressed msgpack fragments plus a manifest.
package shard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/conda-forge/conda-index-go/internal/atomicfile"
	"github.com/conda-forge/conda-index-go/internal/repodata"
)

// ShardDoc is the per-name document encoded into each shard file: only that
// name's records, in the same packages/packages.conda grouping as the
// monolithic repodata.
type ShardDoc struct {
	Packages      map[string]repodata.Record `msgpack:"packages"`
	PackagesConda map[string]repodata.Record `msgpack:"packages.conda"`
}

// ManifestInfo mirrors repodata.json's info header, plus the shard-specific
// shards_base_url field.
type ManifestInfo struct {
	Subdir         string `msgpack:"subdir"`
	BaseURL        string `msgpack:"base_url"`
	ShardsBaseURL  string `msgpack:"shards_base_url"`
}

// Manifest is the repodata_shards.msgpack.zst document: package name to its
// shard's content digest.
type Manifest struct {
	Info   ManifestInfo      `msgpack:"info"`
	Shards map[string]string `msgpack:"shards"`
}

// Emit partitions rd by package name, writes one compressed shard per name
// plus the manifest, into subdirOutputDir. base_url and shardsBaseURL are
// written as empty strings (never omitted) when unset, per spec §4.6.
func Emit(subdirOutputDir string, rd repodata.Repodata, baseURL, shardsBaseURL string) error {
	byName := map[string]*ShardDoc{}
	addTo := func(basename string, rec repodata.Record, group string) {
		name := rec.Name()
		if name == "" {
			return
		}
		doc, ok := byName[name]
		if !ok {
			doc = &ShardDoc{Packages: map[string]repodata.Record{}, PackagesConda: map[string]repodata.Record{}}
			byName[name] = doc
		}
		if group == "packages.conda" {
			doc.PackagesConda[basename] = rec
		} else {
			doc.Packages[basename] = rec
		}
	}
	for basename, rec := range rd.Packages {
		addTo(basename, rec, "packages")
	}
	for basename, rec := range rd.PackagesConda {
		addTo(basename, rec, "packages.conda")
	}

	manifest := Manifest{
		Info: ManifestInfo{
			Subdir:        rd.Info.Subdir,
			BaseURL:       baseURL,
			ShardsBaseURL: shardsBaseURL,
		},
		Shards: map[string]string{},
	}

	for name, doc := range byName {
		compressed, err := encodeShard(doc)
		if err != nil {
			return errors.Wrapf(err, "encoding shard for %s", name)
		}
		sum := sha256.Sum256(compressed)
		digest := hex.EncodeToString(sum[:])
		shardFile := digest + ".msgpack.zst"
		if err := atomicfile.Write(filepath.Join(subdirOutputDir, shardFile), compressed, 0o644); err != nil {
			return errors.Wrapf(err, "writing shard %s", shardFile)
		}
		manifest.Shards[name] = digest
	}

	manifestBytes, err := encodeManifest(manifest)
	if err != nil {
		return errors.Wrap(err, "encoding shard manifest")
	}
	if err := atomicfile.Write(filepath.Join(subdirOutputDir, "repodata_shards.msgpack.zst"), manifestBytes, 0o644); err != nil {
		return errors.Wrap(err, "writing repodata_shards.msgpack.zst")
	}
	return nil
}

func encodeShard(doc *ShardDoc) ([]byte, error) {
	raw, err := msgpack.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack-encoding shard")
	}
	return compress(raw)
}

func encodeManifest(m Manifest) ([]byte, error) {
	raw, err := msgpack.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "msgpack-encoding manifest")
	}
	return compress(raw)
}

func compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, errors.Wrap(err, "creating zstd writer")
	}
	if _, err := zw.Write(raw); err != nil {
		zw.Close()
		return nil, errors.Wrap(err, "writing zstd stream")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "closing zstd stream")
	}
	return buf.Bytes(), nil
}
