package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cheggaaa/pb"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/conda-forge/conda-index-go/internal/indexlog"
	"github.com/conda-forge/conda-index-go/internal/patch"
	"github.com/conda-forge/conda-index-go/internal/repodata"
	"github.com/conda-forge/conda-index-go/internal/textwrap"
	"github.com/conda-forge/conda-index-go/pkg/condaindex"
)

var flags struct {
	outputDir       string
	subdirs         []string
	workers         int
	assembleWorkers int
	verbosity       int
	noUpdateCache   bool

	backend       string
	dbURL         string
	baseURL       string
	shardsBaseURL string

	currentRepodata bool
	channeldata     bool
	runExports      bool
	monolithic      bool
	shards          bool
	html            bool
	htmlPopup       bool
	rss             bool
	channelTitle    string
	channelLink     string

	patchGenerator []string
}

var rootCmd = &cobra.Command{
	Use:   "conda-index <channel-root>",
	Short: "Index a conda channel directory into repodata.json and friends",
	Long: textwrap.Dedent(`
		conda-index reads a channel directory of compressed package archives
		and produces the JSON documents a package manager needs to resolve
		dependencies: repodata.json, current_repodata.json, channeldata.json,
		optional sharded repodata, run_exports.json, and index.html.

		It keeps a per-subdir cache of extracted metadata so repeated runs
		only re-read archives that changed.
	`),
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flags.outputDir, "output", "o", "", "output directory (defaults to the channel root)")
	f.StringSliceVar(&flags.subdirs, "subdir", nil, "subdirs to index (default: auto-detect every subdir containing a package)")
	f.IntVarP(&flags.workers, "workers", "j", 0, "archives to extract concurrently, shared across every subdir (default: number of CPUs)")
	f.IntVar(&flags.assembleWorkers, "assemble-workers", 0, "subdirs to assemble (snapshot/patch/emit) concurrently (default: number of CPUs)")
	f.CountVarP(&flags.verbosity, "verbose", "v", "increase logging verbosity (-v, -vv)")
	f.BoolVar(&flags.noUpdateCache, "no-update-cache", false, "skip probing and extracting; emit from the existing cache only")

	f.StringVar(&flags.backend, "backend", "sqlite", "cache backend: sqlite or postgresql")
	f.StringVar(&flags.dbURL, "db-url", "", "connection URL for the postgresql backend (overridden by CONDA_INDEX_DBURL)")
	f.StringVar(&flags.baseURL, "base-url", "", "CEP-15 base_url; when set, repodata_version 2 is emitted")
	f.StringVar(&flags.shardsBaseURL, "shards-base-url", "", "base URL shard consumers should fetch shards from")

	f.BoolVar(&flags.currentRepodata, "current-repodata", true, "emit current_repodata.json")
	f.BoolVar(&flags.channeldata, "channeldata", true, "emit channeldata.json")
	f.BoolVar(&flags.runExports, "run-exports", false, "emit run_exports.json")
	f.BoolVar(&flags.monolithic, "repodata", true, "emit repodata.json and repodata_from_packages.json")
	f.BoolVar(&flags.shards, "shards", false, "emit sharded repodata (repodata_shards.msgpack.zst)")
	f.BoolVar(&flags.html, "html", false, "emit index.html")
	f.BoolVar(&flags.htmlPopup, "html-popup", false, "link each index.html row to a details fragment")
	f.BoolVar(&flags.rss, "rss", false, "emit a per-channel rss.xml of recently updated packages")
	f.StringVar(&flags.channelTitle, "channel-title", "", "title for rss.xml (required with --rss)")
	f.StringVar(&flags.channelLink, "channel-link", "", "base link for rss.xml entries (required with --rss)")

	f.StringSliceVar(&flags.patchGenerator, "patch-generator", nil, "command (and args) piping pre-patch repodata to stdin and a patch document from stdout")
}

func runIndex(cmd *cobra.Command, args []string) error {
	channelRoot := args[0]

	if flags.rss && (flags.channelTitle == "" || flags.channelLink == "") {
		return errors.New("--channel-title and --channel-link are required with --rss")
	}

	level := indexlog.LevelWarn
	switch {
	case flags.verbosity >= 2:
		level = indexlog.LevelDebug
	case flags.verbosity == 1:
		level = indexlog.LevelInfo
	}
	log := indexlog.New(cmd.ErrOrStderr(), level)

	subdirs := flags.subdirs
	if len(subdirs) == 0 {
		discovered, err := condaindex.DiscoverSubdirs(channelRoot)
		if err != nil {
			return errors.Wrap(err, "auto-detecting subdirs")
		}
		subdirs = discovered
	}
	if len(subdirs) == 0 {
		return errors.Errorf("no subdirs found under %s (pass --subdir explicitly)", channelRoot)
	}

	dbURL := flags.dbURL
	if v := os.Getenv("CONDA_INDEX_DBURL"); v != "" {
		dbURL = v
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var patchGen repodata.Generator
	if len(flags.patchGenerator) > 0 {
		patchGen = patch.Subprocess{Ctx: ctx, Name: flags.patchGenerator[0], Args: flags.patchGenerator[1:]}.Generator()
	}

	bar := pb.New(len(subdirs))
	bar.Output = cmd.ErrOrStderr()
	bar.ShowTimeLeft = true
	bar.Prefix("indexing ")
	bar.Start()
	defer bar.Finish()

	results, err := condaindex.Index(ctx, condaindex.Config{
		ChannelRoot:     channelRoot,
		OutputDir:       flags.outputDir,
		Subdirs:         subdirs,
		Backend:         condaindex.Backend(flags.backend),
		DBURL:           dbURL,
		BaseURL:         flags.baseURL,
		Workers:         flags.workers,
		AssembleWorkers: flags.assembleWorkers,
		NoUpdateCache:   flags.noUpdateCache,
		EmitCurrent:     flags.currentRepodata,
		EmitChanneldata: flags.channeldata,
		EmitRunExports:  flags.runExports,
		EmitMonolithic:  flags.monolithic,
		EmitShards:      flags.shards,
		ShardsBaseURL:   flags.shardsBaseURL,
		EmitHTML:        flags.html,
		ShowHTMLPopup:   flags.htmlPopup,
		EmitRSS:         flags.rss,
		ChannelTitle:    flags.channelTitle,
		ChannelLink:     flags.channelLink,
		PatchGenerator:  patchGen,
		Log:             log,
	})
	if err != nil {
		return err
	}

	for _, res := range results {
		bar.Increment()
		if res.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: FAILED: %v\n", res.Subdir, res.Err)
			continue
		}
		log.Infof("%s: %d package(s) indexed", res.Subdir, res.Indexed)
	}

	if condaindex.AnyFailed(results) {
		return errors.New("one or more subdirs failed")
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
