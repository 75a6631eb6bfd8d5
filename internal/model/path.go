package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Path addresses a node inside a document as a sequence of segments.
// A segment applied to an Object is a key; applied to an Array it is a
// decimal element index. The empty path is the document root.
//
// The textual form joins segments with dots: "setters.1.name".
type Path []string

// Root is the empty path.
var Root = Path{}

// ParsePath parses a dotted path. Empty segments are rejected.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Root, nil
	}
	segs := strings.Split(s, ".")
	for i, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("path %q: empty segment at position %d", s, i)
		}
	}
	return Path(segs), nil
}

// MustParsePath is like ParsePath but panics on error.
// Use only in tests or with literal paths.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the dotted form.
func (p Path) String() string {
	return strings.Join(p, ".")
}

// IsRoot reports whether p addresses the document root.
func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Equal reports whether both paths have identical segments.
func (p Path) Equal(q Path) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether q is a prefix of p (including p == q).
func (p Path) HasPrefix(q Path) bool {
	return len(q) <= len(p) && p[:len(q)].Equal(q)
}

// Parent returns p without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

// Last returns the final segment, or "" for the root.
func (p Path) Last() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// IndexAt interprets segment i as an array index.
// Returns false if the segment is missing or not a non-negative integer.
func (p Path) IndexAt(i int) (int, bool) {
	if i < 0 || i >= len(p) {
		return 0, false
	}
	return parseIndex(p[i])
}

// WithIndexAt returns a copy of p with segment i replaced by the index n.
func (p Path) WithIndexAt(i, n int) Path {
	out := make(Path, len(p))
	copy(out, p)
	out[i] = strconv.Itoa(n)
	return out
}

// Child returns p extended by seg.
func (p Path) Child(seg string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, seg)
}

// MarshalJSON encodes the dotted form.
func (p Path) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes the dotted form.
func (p *Path) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePath(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// parseIndex accepts canonical decimal indices only ("0", "12"; not "01" or "-1").
func parseIndex(seg string) (int, bool) {
	if seg == "" || (len(seg) > 1 && seg[0] == '0') {
		return 0, false
	}
	for _, c := range seg {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(seg)
	if err != nil {
		return 0, false
	}
	return n, true
}
