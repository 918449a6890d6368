// Package condaindex is the public entrypoint gluing the probe, extractor,
// repodata assembler, shard emitter, and channel scheduler into a single
// Index call, for use by cmd/conda-index and any other embedder.
package condaindex

import (
	"context"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/indexlog"
	"github.com/conda-forge/conda-index-go/internal/repodata"
	"github.com/conda-forge/conda-index-go/internal/scheduler"
)

// Backend selects which cache-store backend a Config uses.
type Backend string

const (
	// BackendSQLite is the default: one embedded cache per subdir.
	BackendSQLite Backend = "sqlite"
	// BackendPostgres is a server backend shared across subdirs/channels.
	BackendPostgres Backend = "postgresql"
)

// Config is the full set of knobs a single indexing run accepts, mirroring
// the CLI surface described in spec §6.
type Config struct {
	ChannelRoot string
	OutputDir   string // defaults to ChannelRoot when empty
	Subdirs     []string

	Backend  Backend
	DBURL    string // required when Backend == BackendPostgres
	BaseURL  string // CEP-15 base_url; enables repodata_version 2

	Workers         int // size of the shared extraction pool; defaults to CPU count
	AssembleWorkers int // size of the shared assembly pool; defaults to CPU count
	NoUpdateCache   bool

	EmitCurrent     bool
	EmitChanneldata bool
	EmitRunExports  bool
	EmitMonolithic  bool
	EmitShards      bool
	ShardsBaseURL   string
	EmitHTML        bool
	ShowHTMLPopup   bool
	EmitRSS         bool
	ChannelTitle    string
	ChannelLink     string

	PatchGenerator repodata.Generator

	Log *indexlog.Logger
}

// Result is one subdir's outcome, re-exported from the scheduler package so
// callers never need to import internal/scheduler directly.
type Result = scheduler.SubdirResult

// Index runs one full indexing pass over cfg.ChannelRoot. It returns one
// Result per subdir; a non-nil error is returned only for conditions that
// abort the whole run (a malformed Config). Per-subdir failures are
// reported through each Result's Failed/Err fields so one bad subdir never
// hides the others' success.
func Index(ctx context.Context, cfg Config) ([]Result, error) {
	backend, err := newBackend(cfg)
	if err != nil {
		return nil, err
	}

	return scheduler.Run(ctx, scheduler.Config{
		ChannelRoot:     cfg.ChannelRoot,
		Subdirs:         cfg.Subdirs,
		OutputRoot:      cfg.OutputDir,
		Backend:         backend,
		ExtractWorkers:  cfg.Workers,
		AssembleWorkers: cfg.AssembleWorkers,
		NoUpdateCache:   cfg.NoUpdateCache,
		PatchGenerator:  cfg.PatchGenerator,
		BaseURL:         cfg.BaseURL,
		EmitCurrent:     cfg.EmitCurrent,
		EmitChanneldata: cfg.EmitChanneldata,
		EmitRunExports:  cfg.EmitRunExports,
		EmitMonolithic:  cfg.EmitMonolithic,
		EmitShards:      cfg.EmitShards,
		ShardsBaseURL:   cfg.ShardsBaseURL,
		EmitHTML:        cfg.EmitHTML,
		ShowHTMLPopup:   cfg.ShowHTMLPopup,
		EmitRSS:         cfg.EmitRSS,
		ChannelTitle:    cfg.ChannelTitle,
		ChannelLink:     cfg.ChannelLink,
		Log:             cfg.Log,
	})
}

func newBackend(cfg Config) (scheduler.Backend, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		return scheduler.EmbeddedBackend{}, nil
	case BackendPostgres:
		if cfg.DBURL == "" {
			return nil, errors.New("condaindex: DBURL is required for the postgresql backend")
		}
		return scheduler.ServerBackend{DSN: cfg.DBURL}, nil
	default:
		return nil, errors.Errorf("condaindex: unknown backend %q", cfg.Backend)
	}
}

// AnyFailed reports whether any subdir in results failed, for the CLI's
// exit-code decision.
func AnyFailed(results []Result) bool {
	for _, r := range results {
		if r.Failed {
			return true
		}
	}
	return false
}
