package archive

import "github.com/pkg/errors"

// ErrMalformed indicates the archive could not be parsed as its detected
// format. Callers should skip the archive and retry on the next run rather
// than treat this as fatal to the whole subdir.
var ErrMalformed = errors.New("archive malformed")

// ErrUnrecognizedFormat indicates the basename doesn't match any recognized
// package archive extension.
var ErrUnrecognizedFormat = errors.New("unrecognized archive format")
