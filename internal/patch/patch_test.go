package patch

import (
	"context"
	"runtime"
	"testing"

	"github.com/conda-forge/conda-index-go/internal/repodata"
)

func TestSubprocessGeneratorRunsCommandAndParsesOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test invokes a POSIX shell")
	}
	gen := Subprocess{
		Ctx:  context.Background(),
		Name: "sh",
		Args: []string{"-c", `cat >/dev/null; echo '{"patch_instructions_version":1,"remove":["a-1.0-0.conda"]}'`},
	}.Generator()

	doc, err := gen(repodata.Repodata{})
	if err != nil {
		t.Fatalf("Generator: %v", err)
	}
	if doc.PatchInstructionsVersion != 1 {
		t.Errorf("PatchInstructionsVersion = %d, want 1", doc.PatchInstructionsVersion)
	}
	if len(doc.Remove) != 1 || doc.Remove[0] != "a-1.0-0.conda" {
		t.Errorf("Remove = %v", doc.Remove)
	}
}

func TestSubprocessGeneratorPropagatesMalformedOutput(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test invokes a POSIX shell")
	}
	gen := Subprocess{
		Ctx:  context.Background(),
		Name: "sh",
		Args: []string{"-c", `cat >/dev/null; echo 'not json'`},
	}.Generator()

	if _, err := gen(repodata.Repodata{}); err == nil {
		t.Fatal("expected an error for malformed patch generator output")
	}
}

func TestSubprocessGeneratorReceivesPrePatchJSON(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("test invokes a POSIX shell")
	}
	// grep proves the pre-patch document's subdir reached the process's
	// stdin; the command only succeeds (and echoes a patch) if it matches.
	gen := Subprocess{
		Ctx:  context.Background(),
		Name: "sh",
		Args: []string{"-c", `grep -q '"subdir":"noarch"' && echo '{"patch_instructions_version":1,"remove":["noarch"]}'`},
	}.Generator()

	doc, err := gen(repodata.Repodata{Info: repodata.Info{Subdir: "noarch"}})
	if err != nil {
		t.Fatalf("Generator: %v", err)
	}
	if len(doc.Remove) != 1 || doc.Remove[0] != "noarch" {
		t.Errorf("Remove = %v, want [noarch]", doc.Remove)
	}
}
