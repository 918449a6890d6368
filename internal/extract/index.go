package extract

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/conda-forge/conda-index-go/internal/digest"
)

// augmentIndexJSON overwrites index.json's sha256 and size fields with the
// digest computed from the archive's actual bytes, and adds md5. Per the
// spec these computed values always win over whatever the archive itself
// claims. Re-marshaling through map[string]json.RawMessage keeps every
// other field's value as the archive wrote it, except that encoding/json
// compacts whitespace and escapes <, > and & inside it; as a side effect it
// sorts keys (Go marshals string-keyed maps in key order), which keeps
// repodata.json output deterministic.
func augmentIndexJSON(raw []byte, d digest.Result) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, errors.Wrap(err, "parsing index.json")
	}
	sha256Bytes, err := json.Marshal(d.SHA256)
	if err != nil {
		return nil, errors.Wrap(err, "encoding sha256")
	}
	md5Bytes, err := json.Marshal(d.MD5)
	if err != nil {
		return nil, errors.Wrap(err, "encoding md5")
	}
	sizeBytes, err := json.Marshal(d.Size)
	if err != nil {
		return nil, errors.Wrap(err, "encoding size")
	}
	fields["sha256"] = sha256Bytes
	fields["md5"] = md5Bytes
	fields["size"] = sizeBytes
	out, err := json.Marshal(fields)
	if err != nil {
		return nil, errors.Wrap(err, "re-encoding index.json")
	}
	return out, nil
}
