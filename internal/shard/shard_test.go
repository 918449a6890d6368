package shard

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/conda-forge/conda-index-go/internal/repodata"
)

func rec(t *testing.T, fields map[string]any) repodata.Record {
	t.Helper()
	out := repodata.Record{}
	for k, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %s: %v", k, err)
		}
		out[k] = data
	}
	return out
}

func decompress(t *testing.T, path string) []byte {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	zr, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("zstd.NewReader: %v", err)
	}
	defer zr.Close()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(zr); err != nil {
		t.Fatalf("decompressing %s: %v", path, err)
	}
	return buf.Bytes()
}

func TestEmitRoundTripsMonolithicRecords(t *testing.T) {
	rd := repodata.Repodata{
		Info: repodata.Info{Subdir: "noarch"},
		Packages: map[string]repodata.Record{
			"b-1.0-0.tar.bz2": rec(t, map[string]any{"name": "b", "version": "1.0"}),
		},
		PackagesConda: map[string]repodata.Record{
			"a-1.0-0.conda": rec(t, map[string]any{"name": "a", "version": "1.0"}),
			"a-2.0-0.conda": rec(t, map[string]any{"name": "a", "version": "2.0"}),
		},
	}
	dir := t.TempDir()
	if err := Emit(dir, rd, "", ""); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	manifestBytes := decompress(t, filepath.Join(dir, "repodata_shards.msgpack.zst"))
	var manifest Manifest
	if err := msgpack.Unmarshal(manifestBytes, &manifest); err != nil {
		t.Fatalf("unmarshal manifest: %v", err)
	}
	if manifest.Info.BaseURL != "" || manifest.Info.ShardsBaseURL != "" {
		t.Errorf("expected empty-string base URLs, got %+v", manifest.Info)
	}
	if len(manifest.Shards) != 2 {
		t.Fatalf("manifest.Shards = %v, want 2 names", manifest.Shards)
	}

	reconstructed := map[string]repodata.Record{}
	for name, digest := range manifest.Shards {
		shardPath := filepath.Join(dir, digest+".msgpack.zst")
		raw, err := os.ReadFile(shardPath)
		if err != nil {
			t.Fatalf("shard file for %s missing: %v", name, err)
		}
		sumBytes := sha256.Sum256(raw)
		sum := hex.EncodeToString(sumBytes[:])
		if sum != digest {
			t.Errorf("shard filename %s does not match sha256 of its bytes (%s)", digest, sum)
		}
		shardBytes := decompress(t, shardPath)
		var doc ShardDoc
		if err := msgpack.Unmarshal(shardBytes, &doc); err != nil {
			t.Fatalf("unmarshal shard %s: %v", name, err)
		}
		for basename, r := range doc.Packages {
			reconstructed[basename] = r
		}
		for basename, r := range doc.PackagesConda {
			reconstructed[basename] = r
		}
	}

	if len(reconstructed) != 3 {
		t.Fatalf("reconstructed %d records, want 3", len(reconstructed))
	}
	for basename := range rd.Packages {
		if _, ok := reconstructed[basename]; !ok {
			t.Errorf("missing %s from shard reconstruction", basename)
		}
	}
	for basename := range rd.PackagesConda {
		if _, ok := reconstructed[basename]; !ok {
			t.Errorf("missing %s from shard reconstruction", basename)
		}
	}
}
