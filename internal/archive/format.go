package archive

import "strings"

// Format is the on-disk archive format of a package file.
type Format int

const (
	// UnknownFormat is returned for names that don't match a recognized
	// package archive extension.
	UnknownFormat Format = iota
	// CondaFormat is the newer zstd-compressed format: a zip container
	// holding an inner "info-*.tar.zst" and "pkg-*.tar.zst".
	CondaFormat
	// TarBz2Format is the legacy format: a plain bzip2-compressed tarball.
	TarBz2Format
)

// Ext is the canonical file extension for a Format, including the dot.
func (f Format) Ext() string {
	switch f {
	case CondaFormat:
		return ".conda"
	case TarBz2Format:
		return ".tar.bz2"
	default:
		return ""
	}
}

// DetectFormat classifies a basename by its recognized extension.
func DetectFormat(name string) Format {
	switch {
	case strings.HasSuffix(name, ".conda"):
		return CondaFormat
	case strings.HasSuffix(name, ".tar.bz2"):
		return TarBz2Format
	default:
		return UnknownFormat
	}
}

// RecognizedExtensions lists every extension the filesystem probe should
// treat as a package archive.
var RecognizedExtensions = []string{".conda", ".tar.bz2"}
