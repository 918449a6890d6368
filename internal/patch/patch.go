// Package patch implements the patch-generator loader: it turns a
// configured external command into a repodata.Generator by piping the
// pre-patch repodata to the command's stdin as JSON and parsing its stdout
// as a patch document. The generator contract itself (data-in/data-out)
// lives in internal/repodata; this package is the "outside the core"
// loading mechanism the spec leaves unspecified.
package patch

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/repodata"
)

// Subprocess loads a patch generator backed by an external command: name
// plus args, invoked fresh for every subdir with the pre-patch repodata.json
// on stdin and the patch document expected on stdout.
type Subprocess struct {
	Ctx  context.Context
	Name string
	Args []string
}

// Generator returns a repodata.Generator that runs the configured command
// once per call.
func (s Subprocess) Generator() repodata.Generator {
	return func(pre repodata.Repodata) (repodata.PatchDocument, error) {
		preJSON, err := json.Marshal(pre)
		if err != nil {
			return repodata.PatchDocument{}, errors.Wrap(err, "encoding pre-patch repodata")
		}

		ctx := s.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		cmd := exec.CommandContext(ctx, s.Name, s.Args...)
		cmd.Stdin = bytes.NewReader(preJSON)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return repodata.PatchDocument{}, errors.Wrapf(err, "running patch generator %s: %s", s.Name, stderr.String())
		}

		doc, err := repodata.ParsePatchDocument(stdout.Bytes())
		if err != nil {
			return repodata.PatchDocument{}, errors.Wrapf(err, "parsing output of patch generator %s", s.Name)
		}
		return doc, nil
	}
}
