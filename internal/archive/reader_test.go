package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func buildCondaArchive(t *testing.T, members map[string][]byte) string {
	t.Helper()
	var innerTar bytes.Buffer
	tw := tar.NewWriter(&innerTar)
	for name, data := range members {
		if err := tw.WriteHeader(&tar.Header{Name: name, Size: int64(len(data)), Mode: 0o644}); err != nil {
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

	dir := t.TempDir()
	path := filepath.Join(dir, "pkg-1.0-0.conda")
	f, err := os.Create(path)
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
	pkgW, err := zipw.Create("pkg-1.0-0.tar.zst")
	if err != nil {
		t.Fatalf("zip create pkg entry: %v", err)
	}
	if _, err := pkgW.Write([]byte("not metadata, never touched")); err != nil {
		t.Fatalf("zip write pkg entry: %v", err)
	}
	if err := zipw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return path
}

func TestReadFileConda(t *testing.T) {
	members := map[string][]byte{
		MemberIndexJSON: []byte(`{"name":"a","version":"1.0"}`),
		MemberAbout:     []byte(`{"summary":"test"}`),
	}
	path := buildCondaArchive(t, members)

	res, err := ReadFile(path, Options{Members: []string{MemberIndexJSON, MemberAbout, MemberRecipeLog}, Digest: true})
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(res.Members[MemberIndexJSON]) != string(members[MemberIndexJSON]) {
		t.Errorf("index.json mismatch: got %q", res.Members[MemberIndexJSON])
	}
	if string(res.Members[MemberAbout]) != string(members[MemberAbout]) {
		t.Errorf("about.json mismatch: got %q", res.Members[MemberAbout])
	}
	if _, ok := res.Members[MemberRecipeLog]; ok {
		t.Error("recipe_log.json should be absent, not an error")
	}
	if res.Digest.SHA256 == "" || res.Digest.Size == 0 {
		t.Error("expected non-zero digest for requested Digest:true")
	}
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if res.Digest.Size != fi.Size() {
		t.Errorf("digest size %d != file size %d", res.Digest.Size, fi.Size())
	}
}

func TestReadFileUnrecognizedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "not-a-package.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path, Options{}); err == nil {
		t.Fatal("expected error for unrecognized format")
	}
}

func TestWalkTarStopsEarly(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	entries := []struct {
		name string
		data string
	}{
		{MemberIndexJSON, `{"name":"a"}`},
		{MemberAbout, `{"summary":"x"}`},
		{"info/recipe_log.json", "{}"},
	}
	for _, e := range entries {
		if err := tw.WriteHeader(&tar.Header{Name: e.name, Size: int64(len(e.data))}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(e.data)); err != nil {
			t.Fatal(err)
		}
	}
	tw.Close()

	want := wantedSet([]string{MemberIndexJSON, MemberAbout})
	found, err := walkTar(tar.NewReader(bytes.NewReader(buf.Bytes())), want, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 members, got %d: %v", len(found), found)
	}
	if _, ok := found["info/recipe_log.json"]; ok {
		t.Error("walkTar should have stopped before reaching the unwanted trailing entry")
	}
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"a-1.0-0.conda":   CondaFormat,
		"a-1.0-0.tar.bz2": TarBz2Format,
		"a-1.0-0.json":    UnknownFormat,
	}
	for name, want := range cases {
		if got := DetectFormat(name); got != want {
			t.Errorf("DetectFormat(%q) = %v, want %v", name, got, want)
		}
	}
}
