// Package scheduler implements the channel scheduler (component C7): it
// orchestrates Probe -> Extractor -> Assembler for every subdir in a
// channel, overlapping extraction for one subdir with emission for another,
// under per-subdir cache locks and bounded worker pools.
package scheduler

import (
	"context"
	"path/filepath"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/conda-forge/conda-index-go/internal/cachestore"
	"github.com/conda-forge/conda-index-go/internal/extract"
	"github.com/conda-forge/conda-index-go/internal/indexlog"
	"github.com/conda-forge/conda-index-go/internal/probe"
	"github.com/conda-forge/conda-index-go/internal/repodata"
	"github.com/conda-forge/conda-index-go/internal/shard"
	"github.com/conda-forge/conda-index-go/internal/syncx"
)

// ErrCacheLocked re-exports cachestore.ErrCacheLocked so callers of this
// package never need to import internal/cachestore just to check for it.
var ErrCacheLocked = cachestore.ErrCacheLocked

// Backend opens a Store for one subdir. Config selects embedded vs. shared
// per spec §6 (CLI backend selector).
type Backend interface {
	Open(ctx context.Context, channelRoot, subdir string) (*cachestore.Store, error)
}

// Config controls one scheduler run across a channel.
type Config struct {
	ChannelRoot       string
	Subdirs           []string
	OutputRoot        string // defaults to ChannelRoot when empty
	Backend           Backend
	Prober            probe.Prober // defaults to probe.LocalFS{} when nil
	ExtractWorkers    int
	AssembleWorkers   int
	NoUpdateCache     bool
	PatchGenerator    repodata.Generator // nil disables patching
	BaseURL           string
	EmitCurrent       bool
	EmitChanneldata   bool
	EmitRunExports    bool
	EmitMonolithic    bool
	EmitShards        bool
	ShardsBaseURL     string
	EmitHTML          bool
	ShowHTMLPopup     bool
	EmitRSS           bool
	ChannelTitle      string
	ChannelLink       string
	Log               *indexlog.Logger
}

// SubdirResult is the outcome of running the pipeline for one subdir.
type SubdirResult struct {
	Subdir     string
	Failed     bool
	Err        error
	Skipped    []extract.Outcome
	Indexed    int
}

// Run drives the full channel: probe+extract (when enabled) then assemble,
// per subdir, honoring ctx cancellation at archive and transaction
// boundaries. It returns a non-zero-signaling error only in the sense that
// callers should inspect the returned results; Run itself only returns an
// error for conditions that abort the whole run (e.g. a nil Backend).
func Run(ctx context.Context, cfg Config) ([]SubdirResult, error) {
	if cfg.Backend == nil {
		return nil, errors.New("scheduler: Backend is required")
	}
	log := cfg.Log
	if log == nil {
		log = indexlog.Default()
	}
	prober := cfg.Prober
	if prober == nil {
		prober = probe.LocalFS{}
	}
	outputRoot := cfg.OutputRoot
	if outputRoot == "" {
		outputRoot = cfg.ChannelRoot
	}

	// One extraction pool and one assembly pool for the whole channel, not
	// per subdir: per spec §4.7/§5 ExtractWorkers and AssembleWorkers bound
	// concurrency across every subdir combined, defaulting to the CPU count
	// when unset.
	extractWorkers := cfg.ExtractWorkers
	if extractWorkers <= 0 {
		extractWorkers = runtime.NumCPU()
	}
	assembleWorkers := cfg.AssembleWorkers
	if assembleWorkers <= 0 {
		assembleWorkers = runtime.NumCPU()
	}
	extractSem := make(chan struct{}, extractWorkers)
	assembleSem := make(chan struct{}, assembleWorkers)

	var results syncx.Map[string, SubdirResult]

	eg, egCtx := errgroup.WithContext(ctx)
	for _, subdir := range cfg.Subdirs {
		subdir := subdir
		eg.Go(func() error {
			res := runSubdir(egCtx, cfg, log, prober, outputRoot, subdir, extractSem, assembleSem)
			results.Store(subdir, res)
			return nil // a failed subdir does not abort other subdirs
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]SubdirResult, 0, len(cfg.Subdirs))
	for _, subdir := range cfg.Subdirs {
		if res, ok := results.Load(subdir); ok {
			out = append(out, res)
		}
	}

	if cfg.EmitChanneldata {
		if err := emitChanneldata(ctx, cfg, out); err != nil {
			log.Errorf("channeldata: %v", err)
		}
	}

	return out, nil
}

func runSubdir(ctx context.Context, cfg Config, log *indexlog.Logger, prober probe.Prober, outputRoot, subdir string, extractSem, assembleSem chan struct{}) SubdirResult {
	subdirPath := filepath.Join(cfg.ChannelRoot, subdir)
	store, err := cfg.Backend.Open(ctx, cfg.ChannelRoot, subdir)
	if err != nil {
		log.Warnf("%s: %v", subdir, err)
		return SubdirResult{Subdir: subdir, Failed: true, Err: errors.Wrapf(err, "opening cache for %s", subdir)}
	}
	defer store.Close()

	var outcomes []extract.Outcome
	if !cfg.NoUpdateCache {
		stats, err := prober.Probe(ctx, subdirPath)
		if err != nil {
			return SubdirResult{Subdir: subdir, Failed: true, Err: errors.Wrapf(err, "probing %s", subdir)}
		}
		if err := store.SaveFSState(ctx, stats); err != nil {
			return SubdirResult{Subdir: subdir, Failed: true, Err: errors.Wrapf(err, "saving fs state for %s", subdir)}
		}

		changed, err := store.ChangedPaths(ctx)
		if err != nil {
			return SubdirResult{Subdir: subdir, Failed: true, Err: errors.Wrapf(err, "computing changed paths for %s", subdir)}
		}

		fsByPath := make(map[string]cachestore.Stat, len(stats))
		for _, s := range stats {
			fsByPath[s.Path] = s
		}

		log.Infof("%s: %d changed archive(s)", subdir, len(changed))
		outcomes, err = extract.Run(ctx, log, subdirPath, store, fsByPath, changed, extract.Options{Sem: extractSem})
		if err != nil {
			return SubdirResult{Subdir: subdir, Failed: true, Err: errors.Wrapf(err, "extracting %s", subdir)}
		}
	}

	res := SubdirResult{Subdir: subdir, Skipped: outcomes}

	select {
	case assembleSem <- struct{}{}:
	case <-ctx.Done():
		res.Failed = true
		res.Err = errors.Wrap(ctx.Err(), "waiting for assemble worker")
		return res
	}
	defer func() { <-assembleSem }()

	// Ordering guarantee: repodata.json is not written until every changed
	// archive for this subdir has either been stored or recorded as failed,
	// which is already true here since extract.Run only returns after every
	// outcome (success or skip) has been recorded.
	if err := assemble(ctx, cfg, log, store, outputRoot, subdir); err != nil {
		res.Failed = true
		res.Err = err
		return res
	}

	indexed, err := store.IndexedPackages(ctx)
	if err == nil {
		res.Indexed = len(indexed)
	}
	return res
}

func assemble(ctx context.Context, cfg Config, log *indexlog.Logger, store *cachestore.Store, outputRoot, subdir string) error {
	indexed, err := store.IndexedPackages(ctx)
	if err != nil {
		return errors.Wrapf(err, "snapshotting %s", subdir)
	}
	prePatch, err := repodata.Snapshot(subdir, cfg.BaseURL, indexed)
	if err != nil {
		return errors.Wrapf(err, "building repodata snapshot for %s", subdir)
	}

	subdirOut := filepath.Join(outputRoot, subdir)

	// repodata_from_packages.json only ever depends on the pre-patch
	// snapshot, so it is written unconditionally before the patch is even
	// attempted: per spec §7 a malformed patch is fatal to this subdir's
	// *patched* emission only, and this file must survive that failure.
	if cfg.EmitMonolithic {
		if err := repodata.EmitFromPackages(subdirOut, prePatch); err != nil {
			return errors.Wrapf(err, "emitting repodata_from_packages.json for %s", subdir)
		}
	}

	patched := prePatch
	if cfg.PatchGenerator != nil {
		doc, err := cfg.PatchGenerator(prePatch)
		if err != nil {
			return errors.Wrapf(err, "patch generator failed for %s", subdir)
		}
		patched, err = repodata.ApplyPatch(prePatch, doc)
		if err != nil {
			return errors.Wrapf(err, "applying patch for %s", subdir)
		}
	}

	if cfg.EmitMonolithic {
		if err := repodata.EmitPatched(subdirOut, patched); err != nil {
			return errors.Wrapf(err, "emitting repodata.json for %s", subdir)
		}
	}
	if cfg.EmitCurrent {
		if err := repodata.EmitCurrent(subdirOut, repodata.CurrentSubset(patched)); err != nil {
			return errors.Wrapf(err, "emitting current_repodata for %s", subdir)
		}
	}
	if cfg.EmitRunExports {
		doc, err := repodata.BuildRunExports(ctx, store, subdir, indexed)
		if err != nil {
			return errors.Wrapf(err, "building run_exports for %s", subdir)
		}
		if err := repodata.EmitRunExports(subdirOut, doc); err != nil {
			return errors.Wrapf(err, "emitting run_exports for %s", subdir)
		}
	}
	if cfg.EmitHTML {
		if err := repodata.EmitIndexHTML(subdirOut, patched, cfg.ShowHTMLPopup); err != nil {
			return errors.Wrapf(err, "emitting index.html for %s", subdir)
		}
	}
	if cfg.EmitShards {
		if err := shard.Emit(subdirOut, patched, cfg.BaseURL, cfg.ShardsBaseURL); err != nil {
			return errors.Wrapf(err, "emitting shards for %s", subdir)
		}
	}
	return nil
}

func emitChanneldata(ctx context.Context, cfg Config, results []SubdirResult) error {
	var perSubdir []repodata.SubdirInputs
	for _, res := range results {
		if res.Failed {
			continue
		}
		store, err := cfg.Backend.Open(ctx, cfg.ChannelRoot, res.Subdir)
		if err != nil {
			continue
		}
		inputs, err := store.ChanneldataInputs(ctx)
		store.Close()
		if err != nil {
			return errors.Wrapf(err, "loading channeldata inputs for %s", res.Subdir)
		}
		perSubdir = append(perSubdir, repodata.SubdirInputs{Subdir: res.Subdir, Inputs: inputs})
	}
	cd, err := repodata.BuildChanneldata(perSubdir)
	if err != nil {
		return errors.Wrap(err, "building channeldata")
	}
	outputRoot := cfg.OutputRoot
	if outputRoot == "" {
		outputRoot = cfg.ChannelRoot
	}
	if err := repodata.EmitChanneldata(outputRoot, cd); err != nil {
		return errors.Wrap(err, "emitting channeldata.json")
	}

	if cfg.EmitRSS {
		feed, err := repodata.BuildFeed(cfg.ChannelTitle, cfg.ChannelLink, cd, time.Now())
		if err != nil {
			return errors.Wrap(err, "building rss feed")
		}
		if err := repodata.EmitFeed(outputRoot, feed); err != nil {
			return errors.Wrap(err, "emitting rss.xml")
		}
	}
	return nil
}
