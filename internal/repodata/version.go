package repodata

import (
	"strconv"
	"strings"
)

// compareVersions orders two conda version strings. It implements the
// common case of PEP440-style dotted numeric segments with optional
// alphanumeric suffixes; it does not implement the full conda/PEP440
// epoch and pre-release precedence rules. Good enough to pick "latest"
// among the package set seen in one run, which is all current_repodata.json
// and channeldata.json need.
func compareVersions(a, b string) int {
	as := splitVersion(a)
	bs := splitVersion(b)
	for i := 0; i < len(as) || i < len(bs); i++ {
		var av, bv versionPart
		if i < len(as) {
			av = as[i]
		}
		if i < len(bs) {
			bv = bs[i]
		}
		if c := av.compare(bv); c != 0 {
			return c
		}
	}
	return 0
}

type versionPart struct {
	num    int64
	hasNum bool
	str    string
}

func (p versionPart) compare(o versionPart) int {
	if p.hasNum && o.hasNum {
		switch {
		case p.num < o.num:
			return -1
		case p.num > o.num:
			return 1
		default:
			return 0
		}
	}
	if p.hasNum != o.hasNum {
		// A numeric segment outranks an alpha segment at the same position
		// (e.g. "1.0.1" beats "1.0rc1": 1 vs "rc"). A missing segment is
		// neither and compares as the empty string, so "1.0rc1" ranks above
		// "1.0".
		if p.hasNum {
			return 1
		}
		return -1
	}
	return strings.Compare(p.str, o.str)
}

func splitVersion(v string) []versionPart {
	var parts []versionPart
	for _, segment := range strings.FieldsFunc(v, func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == '+'
	}) {
		parts = append(parts, splitAlnum(segment)...)
	}
	return parts
}

// splitAlnum breaks a segment like "0rc1" into numeric/alpha runs so "0",
// "rc", "1" compare independently.
func splitAlnum(s string) []versionPart {
	var out []versionPart
	i := 0
	for i < len(s) {
		j := i
		isDigit := s[i] >= '0' && s[i] <= '9'
		for j < len(s) && (s[j] >= '0' && s[j] <= '9') == isDigit {
			j++
		}
		chunk := s[i:j]
		if isDigit {
			n, _ := strconv.ParseInt(chunk, 10, 64)
			out = append(out, versionPart{num: n, hasNum: true})
		} else {
			out = append(out, versionPart{str: chunk})
		}
		i = j
	}
	return out
}
