package scheduler

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/cachestore"
	"github.com/conda-forge/conda-index-go/internal/repodata"
)

// writeCondaFixture writes a minimal valid .conda archive (a zip containing
// a zstd-compressed inner tar named info-<name>-<version>-0.tar.zst) so the
// scheduler's extraction step has something real to read.
func writeCondaFixture(t *testing.T, subdirPath, name, version string) {
	t.Helper()
	innerTar := buildTar(t, map[string][]byte{
		"info/index.json": mustJSON(t, map[string]any{
			"name": name, "version": version, "build": "0", "build_number": 0,
			"depends": []string{}, "subdir": "noarch",
		}),
	})

	var zstdBuf bytes.Buffer
	zw, err := zstd.NewWriter(&zstdBuf)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	if _, err := zw.Write(innerTar); err != nil {
		t.Fatalf("zstd write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd close: %v", err)
	}

	basename := name + "-" + version + "-0.conda"
	archivePath := filepath.Join(subdirPath, basename)
	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer f.Close()

	zipw := zip.NewWriter(f)
	innerName := "info-" + name + "-" + version + "-0.tar.zst"
	w, err := zipw.Create(innerName)
	if err != nil {
		t.Fatalf("zip.Create: %v", err)
	}
	if _, err := w.Write(zstdBuf.Bytes()); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zipw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func TestRunProducesRepodataForSubdir(t *testing.T) {
	channelRoot := t.TempDir()
	subdir := "noarch"
	subdirPath := filepath.Join(channelRoot, subdir)
	if err := os.MkdirAll(subdirPath, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeCondaFixture(t, subdirPath, "a", "1.0")

	results, err := Run(context.Background(), Config{
		ChannelRoot:    channelRoot,
		Subdirs:        []string{subdir},
		Backend:        EmbeddedBackend{},
		ExtractWorkers: 2,
		EmitMonolithic: true,
		EmitCurrent:    true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want 1", results)
	}
	res := results[0]
	if res.Failed {
		t.Fatalf("subdir failed: %v", res.Err)
	}
	if res.Indexed != 1 {
		t.Errorf("Indexed = %d, want 1", res.Indexed)
	}

	repodataPath := filepath.Join(subdirPath, "repodata.json")
	raw, err := os.ReadFile(repodataPath)
	if err != nil {
		t.Fatalf("reading repodata.json: %v", err)
	}
	var rd repodata.Repodata
	if err := json.Unmarshal(raw, &rd); err != nil {
		t.Fatalf("unmarshal repodata.json: %v", err)
	}
	if _, ok := rd.PackagesConda["a-1.0-0.conda"]; !ok {
		t.Errorf("repodata.json missing a-1.0-0.conda: %+v", rd.PackagesConda)
	}

	if _, err := os.Stat(filepath.Join(subdirPath, "current_repodata.json")); err != nil {
		t.Errorf("current_repodata.json not written: %v", err)
	}

	// A second run with nothing changed should still succeed.
	results2, err := Run(context.Background(), Config{
		ChannelRoot:    channelRoot,
		Subdirs:        []string{subdir},
		Backend:        EmbeddedBackend{},
		EmitMonolithic: true,
	})
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if results2[0].Failed {
		t.Fatalf("second run failed: %v", results2[0].Err)
	}
}

// failingBackend always fails to open, simulating a cache lock held by
// another process or an unreachable server.
type failingBackend struct{}

func (failingBackend) Open(ctx context.Context, channelRoot, subdir string) (*cachestore.Store, error) {
	return nil, errors.New("simulated open failure")
}

func TestRunPatchFailureIsFatalButFromPackagesSurvives(t *testing.T) {
	channelRoot := t.TempDir()
	subdir := "noarch"
	subdirPath := filepath.Join(channelRoot, subdir)
	if err := os.MkdirAll(subdirPath, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeCondaFixture(t, subdirPath, "a", "1.0")

	failingGenerator := func(pre repodata.Repodata) (repodata.PatchDocument, error) {
		return repodata.PatchDocument{}, errors.New("simulated patch generator failure")
	}

	results, err := Run(context.Background(), Config{
		ChannelRoot:    channelRoot,
		Subdirs:        []string{subdir},
		Backend:        EmbeddedBackend{},
		EmitMonolithic: true,
		PatchGenerator: failingGenerator,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !results[0].Failed {
		t.Fatal("expected subdir to be marked failed when the patch generator errors")
	}
	if _, err := os.Stat(filepath.Join(subdirPath, "repodata_from_packages.json")); err != nil {
		t.Errorf("repodata_from_packages.json must survive a patch failure: %v", err)
	}
	if _, err := os.Stat(filepath.Join(subdirPath, "repodata.json")); !os.IsNotExist(err) {
		t.Errorf("repodata.json should not be written when the patch generator failed, got err=%v", err)
	}
}

func TestRunReportsFailureWhenBackendCannotOpen(t *testing.T) {
	channelRoot := t.TempDir()
	results, err := Run(context.Background(), Config{
		ChannelRoot: channelRoot,
		Subdirs:     []string{"noarch"},
		Backend:     failingBackend{},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 || !results[0].Failed {
		t.Fatalf("results = %+v, want one failed result", results)
	}
}

// TestRunFailsFastWhenSubdirCacheAlreadyLocked exercises Testable Property 7:
// a subdir whose cache is already held by another process reports failure
// immediately (no blocking) with an error wrapping cachestore.ErrCacheLocked,
// while the rest of Run still completes normally.
func TestRunFailsFastWhenSubdirCacheAlreadyLocked(t *testing.T) {
	channelRoot := t.TempDir()
	subdir := "noarch"
	subdirPath := filepath.Join(channelRoot, subdir)
	if err := os.MkdirAll(subdirPath, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	writeCondaFixture(t, subdirPath, "a", "1.0")

	held, err := cachestore.OpenEmbedded(context.Background(), subdirPath)
	if err != nil {
		t.Fatalf("OpenEmbedded: %v", err)
	}
	defer held.Close()

	done := make(chan []SubdirResult, 1)
	go func() {
		results, err := Run(context.Background(), Config{
			ChannelRoot:    channelRoot,
			Subdirs:        []string{subdir},
			Backend:        EmbeddedBackend{},
			EmitMonolithic: true,
		})
		if err != nil {
			t.Errorf("Run: %v", err)
			done <- nil
			return
		}
		done <- results
	}()

	var results []SubdirResult
	select {
	case results = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run blocked on an already-locked subdir instead of failing fast")
	}

	if len(results) != 1 || !results[0].Failed {
		t.Fatalf("results = %+v, want one failed result", results)
	}
	if !errors.Is(results[0].Err, cachestore.ErrCacheLocked) {
		t.Errorf("Err = %v, want it to wrap cachestore.ErrCacheLocked", results[0].Err)
	}
}

func buildTar(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(body)), Mode: 0o644}); err != nil {
			t.Fatalf("tar header %s: %v", name, err)
		}
		if _, err := tw.Write(body); err != nil {
			t.Fatalf("tar write %s: %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	return buf.Bytes()
}
