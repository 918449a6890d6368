package extract

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"

	"github.com/conda-forge/conda-index-go/internal/cachestore"
	"github.com/conda-forge/conda-index-go/internal/indexlog"
)

func writeCondaFixture(t *testing.T, dir, name string, members map[string][]byte) {
	t.Helper()
	var innerTar bytes.Buffer
	tw := tar.NewWriter(&innerTar)
	for n, data := range members {
		if err := tw.WriteHeader(&tar.Header{Name: n, Size: int64(len(data)), Mode: 0o644}); err != nil {
			t.Fatalf("tar header: %v", err)
		}
		if _, err := tw.Write(data); err != nil {
			t.Fatalf("tar write: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	var zstdBuf bytes.Buffer
	zw, err := zstd.NewWriter(&zstdBuf)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	if _, err := zw.Write(innerTar.Bytes()); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	zipw := zip.NewWriter(f)
	infoW, err := zipw.Create("info-1.0-0.tar.zst")
	if err != nil {
		t.Fatalf("zip create info entry: %v", err)
	}
	if _, err := infoW.Write(zstdBuf.Bytes()); err != nil {
		t.Fatalf("zip write info entry: %v", err)
	}
	if err := zipw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
}

func TestRunExtractsPayload(t *testing.T) {
	dir := t.TempDir()
	writeCondaFixture(t, dir, "a-1.0-0.conda", map[string][]byte{
		"info/index.json": []byte(`{"name":"a","version":"1.0","build":"0","build_number":0,"subdir":"noarch"}`),
		"info/about.json": []byte(`{"summary":"test package"}`),
		"info/paths.json": []byte(`{"paths":[{"_path":"etc/conda/activate.d/a.sh","path_type":"hardlink"}],"paths_version":1}`),
	})
	fi, err := os.Stat(filepath.Join(dir, "a-1.0-0.conda"))
	if err != nil {
		t.Fatal(err)
	}

	store, err := cachestore.OpenEmbedded(context.Background(), dir)
	if err != nil {
		t.Fatalf("OpenEmbedded: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fp := cachestore.Stat{Path: "a-1.0-0.conda", Mtime: float64(fi.ModTime().Unix()), Size: fi.Size()}
	if err := store.SaveFSState(context.Background(), []cachestore.Stat{fp}); err != nil {
		t.Fatalf("SaveFSState: %v", err)
	}

	log := indexlog.New(os.Stderr, indexlog.LevelWarn)
	outcomes, err := Run(context.Background(), log, dir, store, map[string]cachestore.Stat{"a-1.0-0.conda": fp}, []string{"a-1.0-0.conda"}, Options{Workers: 2})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Skipped || outcomes[0].Err != nil {
		t.Fatalf("outcomes = %+v, want one clean success", outcomes)
	}

	pkgs, err := store.IndexedPackages(context.Background())
	if err != nil {
		t.Fatalf("IndexedPackages: %v", err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("IndexedPackages = %+v, want one row", pkgs)
	}
	var idx map[string]any
	if err := json.Unmarshal(pkgs[0].IndexJSON, &idx); err != nil {
		t.Fatalf("unmarshal index.json: %v", err)
	}
	if idx["name"] != "a" {
		t.Errorf("name = %v, want a", idx["name"])
	}
	if _, ok := idx["sha256"].(string); !ok {
		t.Errorf("sha256 missing from augmented index.json: %v", idx)
	}
	if size, ok := idx["size"].(float64); !ok || int64(size) != fi.Size() {
		t.Errorf("size = %v, want %d", idx["size"], fi.Size())
	}
}

func TestRunSkipsMissingIndexJSON(t *testing.T) {
	dir := t.TempDir()
	writeCondaFixture(t, dir, "bad-1.0-0.conda", map[string][]byte{
		"info/about.json": []byte(`{"summary":"no index.json here"}`),
	})
	fi, err := os.Stat(filepath.Join(dir, "bad-1.0-0.conda"))
	if err != nil {
		t.Fatal(err)
	}
	store, err := cachestore.OpenEmbedded(context.Background(), dir)
	if err != nil {
		t.Fatalf("OpenEmbedded: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fp := cachestore.Stat{Path: "bad-1.0-0.conda", Mtime: float64(fi.ModTime().Unix()), Size: fi.Size()}
	log := indexlog.New(os.Stderr, indexlog.LevelWarn)
	outcomes, err := Run(context.Background(), log, dir, store, map[string]cachestore.Stat{"bad-1.0-0.conda": fp}, []string{"bad-1.0-0.conda"}, Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(outcomes) != 1 || !outcomes[0].Skipped || outcomes[0].Err == nil {
		t.Fatalf("outcomes = %+v, want a skipped outcome", outcomes)
	}

	pkgs, err := store.IndexedPackages(context.Background())
	if err != nil {
		t.Fatalf("IndexedPackages: %v", err)
	}
	if len(pkgs) != 0 {
		t.Errorf("IndexedPackages = %+v, want none (archive was skipped)", pkgs)
	}
}

func TestDerivePostInstall(t *testing.T) {
	raw := []byte(`{"paths":[
		{"_path":"etc/conda/activate.d/z.sh"},
		{"_path":"etc/conda/activate.d/a.sh"},
		{"_path":"bin/post-link.sh"},
		{"_path":"bin/pre-unlink.sh"},
		{"_path":"lib/foo.so","file_mode":"binary","prefix_placeholder":"/opt/conda"},
		{"_path":"share/readme.txt"}
	],"paths_version":1}`)
	pi, err := derivePostInstall(raw)
	if err != nil {
		t.Fatalf("derivePostInstall: %v", err)
	}
	if len(pi.ActivateScripts) != 2 || pi.ActivateScripts[0] != "etc/conda/activate.d/a.sh" {
		t.Errorf("ActivateScripts = %v, want sorted 2 entries", pi.ActivateScripts)
	}
	if len(pi.PostLinkScripts) != 1 {
		t.Errorf("PostLinkScripts = %v", pi.PostLinkScripts)
	}
	if len(pi.PreUnlinkScripts) != 1 {
		t.Errorf("PreUnlinkScripts = %v", pi.PreUnlinkScripts)
	}
	if len(pi.BinaryHasPrefix) != 1 || pi.BinaryHasPrefix[0] != "lib/foo.so" {
		t.Errorf("BinaryHasPrefix = %v", pi.BinaryHasPrefix)
	}
}
