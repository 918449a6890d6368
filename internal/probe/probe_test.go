package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalFSProbe(t *testing.T) {
	dir := t.TempDir()
	write := func(name string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("WriteFile(%s): %v", name, err)
		}
	}
	write("a-1.0-0.conda")
	write("b-1.0-0.tar.bz2")
	write("notes.txt")
	write("repodata.json")
	if err := os.Mkdir(filepath.Join(dir, ".cache"), 0o755); err != nil {
		t.Fatalf("Mkdir(.cache): %v", err)
	}

	stats, err := (LocalFS{}).Probe(context.Background(), dir)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	got := map[string]bool{}
	for _, s := range stats {
		got[s.Path] = true
		if s.Stage != "fs" {
			t.Errorf("Stat(%s).Stage = %q, want fs", s.Path, s.Stage)
		}
		if s.Size != 1 {
			t.Errorf("Stat(%s).Size = %d, want 1", s.Path, s.Size)
		}
	}
	want := map[string]bool{"a-1.0-0.conda": true, "b-1.0-0.tar.bz2": true}
	if len(got) != len(want) {
		t.Fatalf("Probe found %v, want %v", got, want)
	}
	for name := range want {
		if !got[name] {
			t.Errorf("Probe missing %s", name)
		}
	}
}

func TestLocalFSProbeEmptyDir(t *testing.T) {
	dir := t.TempDir()
	stats, err := (LocalFS{}).Probe(context.Background(), dir)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if len(stats) != 0 {
		t.Errorf("Probe(empty) = %v, want none", stats)
	}
}
