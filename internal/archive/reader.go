// Package archive streams the handful of metadata members conda-index cares
// about out of a package archive without fully extracting it. It supports
// the two on-disk package formats: the legacy bzip2 tarball and the newer
// zip-wrapped zstd tarball ("<name>.conda").
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/digest"
)

// Options controls one Read/ReadFile call.
type Options struct {
	// Members is the set of info/ paths to extract. Defaults to
	// DefaultMembers() when nil.
	Members []string
	// Digest requests that md5/sha256/size be computed over the full
	// archive bytes alongside member extraction.
	Digest bool
}

// Result is the outcome of reading one archive.
type Result struct {
	// Members maps member path to its raw bytes, for every requested
	// member that was present. Absent members are simply missing from the
	// map; that is not an error.
	Members map[string][]byte
	// Digest is the zero value unless Options.Digest was set.
	Digest digest.Result
}

// ReadFile opens path, detects its format from the basename, and streams
// the requested members plus (optionally) the whole-archive digest.
func ReadFile(path string, opts Options) (Result, error) {
	format := DetectFormat(path)
	if format == UnknownFormat {
		return Result{}, errors.Wrap(ErrUnrecognizedFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return Result{}, errors.Wrap(err, "opening archive")
	}
	defer f.Close()
	if len(opts.Members) == 0 {
		opts.Members = DefaultMembers()
	}
	switch format {
	case TarBz2Format:
		return readTarBz2(f, opts)
	case CondaFormat:
		fi, err := f.Stat()
		if err != nil {
			return Result{}, errors.Wrap(err, "stat archive")
		}
		res, err := readConda(f, fi.Size(), opts)
		if err != nil {
			return Result{}, err
		}
		if opts.Digest {
			// The zip central directory requires random access, so the
			// member-extraction pass above can't be teed for a digest of
			// the raw file; take a second sequential pass instead.
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				return Result{}, errors.Wrap(err, "rewinding archive")
			}
			d, err := digest.Stream(f)
			if err != nil {
				return Result{}, errors.Wrap(err, "digesting archive")
			}
			res.Digest = d
		}
		return res, nil
	default:
		return Result{}, errors.Wrap(ErrUnrecognizedFormat, path)
	}
}

func wantedSet(members []string) map[string]bool {
	want := make(map[string]bool, len(members))
	for _, m := range members {
		want[m] = true
	}
	return want
}

// readTarBz2 streams the outer bzip2 tarball directly.
func readTarBz2(r io.Reader, opts Options) (Result, error) {
	want := wantedSet(opts.Members)
	var tw *digest.TeeWriter
	src := r
	if opts.Digest {
		tw = digest.NewTeeWriter()
		src = io.TeeReader(r, tw)
	}
	bzr := bzip2.NewReader(src)
	// When computing a digest we must drain the whole stream for the tee to
	// see every byte, so short-circuiting on member completeness is disabled.
	found, err := walkTar(tar.NewReader(bzr), want, !opts.Digest)
	if err != nil {
		return Result{}, err
	}
	res := Result{Members: found}
	if tw != nil {
		// The tar reader stops at its end-of-archive marker, which can leave
		// trailing compressed bytes unread; pull them through the tee too.
		if _, err := io.Copy(io.Discard, src); err != nil {
			return Result{}, errors.Wrap(err, "digesting archive")
		}
		res.Digest = tw.Result()
	}
	return res, nil
}

// walkTar reads tar entries, collecting every member in want. When
// stopEarly is true, it returns as soon as every wanted member has been
// seen instead of draining the rest of the stream.
func walkTar(tr *tar.Reader, want map[string]bool, stopEarly bool) (map[string][]byte, error) {
	found := make(map[string][]byte, len(want))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(ErrMalformed, err.Error())
		}
		name := normalizeTarName(hdr.Name)
		if !want[name] {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, errors.Wrap(ErrMalformed, err.Error())
		}
		found[name] = data
		if stopEarly && allFound(want, found) {
			break
		}
	}
	return found, nil
}

// readConda opens the outer zip container and decompresses only the
// "info-*.tar.zst" entry; the "pkg-*.tar.zst" entry (package payload) is
// never touched.
func readConda(f *os.File, size int64, opts Options) (Result, error) {
	zr, err := zip.NewReader(f, size)
	if err != nil {
		return Result{}, errors.Wrap(ErrMalformed, err.Error())
	}
	var infoEntry *zip.File
	for _, zf := range zr.File {
		if strings.HasPrefix(zf.Name, "info-") && strings.HasSuffix(zf.Name, ".tar.zst") {
			infoEntry = zf
			break
		}
	}
	if infoEntry == nil {
		return Result{}, errors.Wrap(ErrMalformed, "no info-*.tar.zst entry")
	}
	rc, err := infoEntry.Open()
	if err != nil {
		return Result{}, errors.Wrap(ErrMalformed, err.Error())
	}
	defer rc.Close()
	zstdDec, err := zstd.NewReader(rc)
	if err != nil {
		return Result{}, errors.Wrap(ErrMalformed, err.Error())
	}
	defer zstdDec.Close()

	want := wantedSet(opts.Members)
	// No digest short-circuit concern here: digesting the .conda archive is
	// always a separate sequential pass (see ReadFile), so it's always safe
	// to stop as soon as every wanted member has been seen.
	found, err := walkTar(tar.NewReader(zstdDec), want, true)
	if err != nil {
		return Result{}, err
	}
	return Result{Members: found}, nil
}

func normalizeTarName(name string) string {
	return strings.TrimPrefix(name, "./")
}

func allFound(want map[string]bool, found map[string][]byte) bool {
	for m := range want {
		if _, ok := found[m]; !ok {
			return false
		}
	}
	return true
}
