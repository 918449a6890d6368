package condaindex

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/archive"
)

// DiscoverSubdirs auto-detects which immediate subdirectories of
// channelRoot look like conda subdirs: any directory containing at least
// one recognized package archive. This backs the CLI's default "auto" mode
// for the subdir filter flag (spec §6).
func DiscoverSubdirs(channelRoot string) ([]string, error) {
	entries, err := os.ReadDir(channelRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "listing channel root %s", channelRoot)
	}

	var subdirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == ".cache" {
			continue
		}
		hasArchive, err := dirHasArchive(filepath.Join(channelRoot, name))
		if err != nil {
			return nil, err
		}
		if hasArchive {
			subdirs = append(subdirs, name)
		}
	}
	return subdirs, nil
}

func dirHasArchive(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, errors.Wrapf(err, "listing %s", dir)
	}
	for _, entry := range entries {
		if !entry.IsDir() && archive.DetectFormat(entry.Name()) != archive.UnknownFormat {
			return true, nil
		}
	}
	return false, nil
}
