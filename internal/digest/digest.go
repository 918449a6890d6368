// Package digest computes the archive-identity fields (md5, sha256, size)
// conda-index needs for every indexed package in a single pass over the
// archive bytes, feeding each write to every hash at once.
package digest

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
)

// Result holds the computed identity fields for one archive.
type Result struct {
	MD5    string
	SHA256 string
	Size   int64
}

// multiWriter fans a single byte stream out to several hash.Hash instances
// plus a running byte count, so the archive only needs to be read once.
type multiWriter struct {
	hashes []hash.Hash
	size   int64
}

func (m *multiWriter) Write(p []byte) (int, error) {
	for _, h := range m.hashes {
		// hash.Hash.Write never errors.
		h.Write(p)
	}
	m.size += int64(len(p))
	return len(p), nil
}

// Stream consumes r to completion, computing md5, sha256, and size
// simultaneously. It is a pass of its own over r; to digest inline with
// member extraction, pass a TeeWriter to io.TeeReader instead.
func Stream(r io.Reader) (Result, error) {
	md5h := md5.New()
	sha256h := sha256.New()
	mw := &multiWriter{hashes: []hash.Hash{md5h, sha256h}}
	if _, err := io.Copy(mw, r); err != nil {
		return Result{}, err
	}
	return Result{
		MD5:    hex.EncodeToString(md5h.Sum(nil)),
		SHA256: hex.EncodeToString(sha256h.Sum(nil)),
		Size:   mw.size,
	}, nil
}

// TeeWriter returns an io.Writer that can be passed to io.TeeReader alongside
// an archive's primary reader so digesting happens inline with streaming
// extraction. Call Result after the underlying reader has been drained.
type TeeWriter struct {
	mw *multiWriter
}

// NewTeeWriter constructs a TeeWriter.
func NewTeeWriter() *TeeWriter {
	return &TeeWriter{mw: &multiWriter{hashes: []hash.Hash{md5.New(), sha256.New()}}}
}

func (t *TeeWriter) Write(p []byte) (int, error) { return t.mw.Write(p) }

// Result returns the accumulated digest. Safe to call once the source reader
// has been fully consumed.
func (t *TeeWriter) Result() Result {
	return Result{
		MD5:    hex.EncodeToString(t.mw.hashes[0].Sum(nil)),
		SHA256: hex.EncodeToString(t.mw.hashes[1].Sum(nil)),
		Size:   t.mw.size,
	}
}
