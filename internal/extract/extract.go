// Package extract implements the extractor (component C4): for each
// changed archive it invokes the archive reader, parses the metadata
// members it yields, derives the post-install record, augments index.json
// with computed digests, and upserts the result into the cache store.
package extract

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/archive"
	"github.com/conda-forge/conda-index-go/internal/cachestore"
	"github.com/conda-forge/conda-index-go/internal/indexlog"
)

// ErrIndexJSONMissing marks an archive as unusable: spec treats a missing
// or malformed info/index.json the same as a malformed archive.
var ErrIndexJSONMissing = errors.New("index.json absent or malformed")

// Outcome reports what happened to one path during an extraction pass.
type Outcome struct {
	Path    string
	Skipped bool
	Err     error
}

// Options configures one extraction pass.
type Options struct {
	// Workers bounds the number of archives this call opens concurrently.
	// Defaults to 1 when <= 0. Ignored when Sem is set.
	Workers int
	// Sem, when non-nil, is a worker pool shared across every subdir's Run
	// call in one scheduler invocation, so the whole channel never extracts
	// more than cap(Sem) archives at once (spec's "configurable worker pool
	// for extraction shared across subdirs"). Callers that want a pool
	// scoped to just this call should leave it nil and set Workers instead.
	Sem chan struct{}
}

// Run processes every path in changed, reading it via archive.ReadFile,
// deriving payload rows, and storing them through store. Extractions for
// distinct archives proceed concurrently up to the worker pool in effect
// (Options.Sem if set, else a pool sized by Options.Workers); writes into
// store are serialized per call since store.StorePayload opens its own
// transaction per path.
func Run(ctx context.Context, log *indexlog.Logger, subdirPath string, store *cachestore.Store, fsStats map[string]cachestore.Stat, changed []string, opts Options) ([]Outcome, error) {
	sem := opts.Sem
	if sem == nil {
		workers := opts.Workers
		if workers <= 0 {
			workers = 1
		}
		sem = make(chan struct{}, workers)
	}

	outcomes := make([]Outcome, len(changed))
	var wg sync.WaitGroup
	var storeMu sync.Mutex

	for i, path := range changed {
		i, path := i, path
		wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Done()
			outcomes[i] = Outcome{Path: path, Skipped: true, Err: ctx.Err()}
			continue
		}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			fingerprint, ok := fsStats[path]
			if !ok {
				outcomes[i] = Outcome{Path: path, Skipped: true, Err: errors.New("no fs fingerprint for path")}
				return
			}
			payload, err := extractOne(filepath.Join(subdirPath, path), fingerprint)
			if err != nil {
				log.Warnf("skipping %s: %v", path, err)
				outcomes[i] = Outcome{Path: path, Skipped: true, Err: err}
				return
			}
			storeMu.Lock()
			err = store.StorePayload(ctx, path, fingerprint, payload)
			storeMu.Unlock()
			if err != nil {
				log.Warnf("storing %s: %v", path, err)
				outcomes[i] = Outcome{Path: path, Err: err}
				return
			}
			log.Debugf("indexed %s", path)
			outcomes[i] = Outcome{Path: path}
		}()
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return outcomes, errors.Wrap(err, "extraction interrupted")
	}
	return outcomes, nil
}

// extractOne reads one archive and builds its payload row set. A missing or
// malformed index.json makes the whole archive unusable; any other missing
// or malformed member is simply omitted (empty payload), per spec §4.4.
func extractOne(archivePath string, fingerprint cachestore.Stat) (cachestore.Payload, error) {
	res, err := archive.ReadFile(archivePath, archive.Options{Digest: true})
	if err != nil {
		return cachestore.Payload{}, errors.Wrapf(err, "reading %s", archivePath)
	}

	rawIndex, ok := res.Members[archive.MemberIndexJSON]
	if !ok {
		return cachestore.Payload{}, errors.Wrapf(ErrIndexJSONMissing, archivePath)
	}
	if !json.Valid(rawIndex) {
		return cachestore.Payload{}, errors.Wrapf(ErrIndexJSONMissing, archivePath)
	}
	indexJSON, err := augmentIndexJSON(rawIndex, res.Digest)
	if err != nil {
		return cachestore.Payload{}, errors.Wrapf(ErrIndexJSONMissing, "%s: %v", archivePath, err)
	}

	payload := cachestore.Payload{IndexJSON: indexJSON}

	if about, ok := res.Members[archive.MemberAbout]; ok && json.Valid(about) {
		payload.About = about
	}
	if recipe, ok := res.Members[archive.MemberRecipeRendered]; ok {
		if rendered, err := renderRecipeJSON(recipe); err == nil {
			payload.Recipe = rendered
		}
	} else if recipe, ok := res.Members[archive.MemberRecipeFallback]; ok {
		if rendered, err := renderRecipeJSON(recipe); err == nil {
			payload.Recipe = rendered
		}
	}
	if recipeLog, ok := res.Members[archive.MemberRecipeLog]; ok && json.Valid(recipeLog) {
		payload.RecipeLog = recipeLog
	}
	if runExports, ok := res.Members[archive.MemberRunExports]; ok && json.Valid(runExports) {
		payload.RunExports = runExports
	}
	if icon, ok := res.Members[archive.MemberIcon]; ok {
		payload.Icon = icon
	}
	if pathsRaw, ok := res.Members[archive.MemberPaths]; ok {
		if pi, err := derivePostInstall(pathsRaw); err == nil {
			if encoded, err := json.Marshal(pi); err == nil {
				payload.PostInstall = encoded
			}
		}
	}

	return payload, nil
}
