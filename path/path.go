// Package path implements Racer's path algebra: normalizing the many
// shapes a caller can hand a handle (a dotted string, a bare number, a
// segment slice, another handle) into a canonical, absolute segment
// sequence, plus the prefix tests the event bus uses to decide whether
// a listener is impacted by a mutation.
package path

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Segment is either a string key or a non-negative array index. Only
// string and int are valid dynamic types; anything else is a
// programmer error caught by Canonicalize.
type Segment any

// Path is a canonical, absolute sequence of segments. The empty Path
// addresses the root of the tree.
type Path []Segment

// ErrInvalidPath is the sentinel wrapped by every malformed-subpath
// error Canonicalize produces.
var ErrInvalidPath = errors.New("racer/path: invalid path segment")

// Absolute reports whether a handle exposing this path can be used
// directly against a Tree. Every Path produced by Canonicalize is
// absolute by construction; the type exists so call sites can document
// intent without a redundant runtime check.
func (p Path) Absolute() bool { return true }

// String renders the canonical dotted-string form used for
// compatibility with callers that still pass strings around (logging,
// the CLI, snapshot keys).
func (p Path) String() string {
	if len(p) == 0 {
		return ""
	}
	parts := make([]string, len(p))
	for i, seg := range p {
		switch s := seg.(type) {
		case string:
			parts[i] = s
		case int:
			parts[i] = strconv.Itoa(s)
		}
	}
	return strings.Join(parts, ".")
}

// Clone returns a copy of p so callers may safely mutate the result
// without aliasing the receiver's backing array.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// Append returns a new Path with sub appended; neither p nor sub is
// mutated.
func (p Path) Append(sub Path) Path {
	out := make(Path, 0, len(p)+len(sub))
	out = append(out, p...)
	out = append(out, sub...)
	return out
}

// handleLike is satisfied by any scoped handle that can report its own
// absolute path; it lets Canonicalize accept a handle argument without
// this package importing the handle package (which imports path).
type handleLike interface {
	Path() Path
}

// isIntegerString reports whether s matches ^[0-9]+$.
func isIntegerString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// coerceSegment applies the integer-coercion rule: any string segment
// made up entirely of digits becomes an int.
func coerceSegment(seg Segment) (Segment, error) {
	switch s := seg.(type) {
	case int:
		if s < 0 {
			return nil, errors.Wrapf(ErrInvalidPath, "negative array index %d", s)
		}
		return s, nil
	case string:
		if isIntegerString(s) {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidPath, "segment %q overflows int", s)
			}
			return n, nil
		}
		return s, nil
	case float64:
		// Accepted for callers that round-trip through encoding/json
		// (JSON numbers decode as float64); must be a finite
		// non-negative integer.
		if s < 0 || s != float64(int(s)) {
			return nil, errors.Wrapf(ErrInvalidPath, "segment %v is not a non-negative integer", s)
		}
		return int(s), nil
	default:
		return nil, errors.Wrapf(ErrInvalidPath, "segment of type %T is neither string nor integer", seg)
	}
}

// subpathSegments normalizes a raw "sub" argument — nil, a string, a
// number, a []Segment/[]any/[]string/[]int, a Path, or a handleLike —
// into a slice of coerced Segments. nil/empty string means "no
// sub-path", i.e. the base path itself.
func subpathSegments(sub any) ([]Segment, error) {
	switch v := sub.(type) {
	case nil:
		return nil, nil
	case Path:
		return coerceAll([]Segment(v))
	case handleLike:
		return coerceAll([]Segment(v.Path()))
	case string:
		if v == "" {
			return nil, nil
		}
		parts := strings.Split(v, ".")
		segs := make([]Segment, len(parts))
		for i, p := range parts {
			segs[i] = p
		}
		return coerceAll(segs)
	case int:
		return coerceAll([]Segment{v})
	case float64:
		return coerceAll([]Segment{v})
	case []Segment:
		return coerceAll(v)
	case []any:
		segs := make([]Segment, len(v))
		copy(segs, v)
		return coerceAll(segs)
	case []string:
		segs := make([]Segment, len(v))
		for i, s := range v {
			segs[i] = s
		}
		return coerceAll(segs)
	case []int:
		segs := make([]Segment, len(v))
		for i, n := range v {
			segs[i] = n
		}
		return coerceAll(segs)
	default:
		return nil, errors.Wrapf(ErrInvalidPath, "unsupported subpath argument of type %T", sub)
	}
}

func coerceAll(raw []Segment) ([]Segment, error) {
	out := make([]Segment, len(raw))
	for i, seg := range raw {
		c, err := coerceSegment(seg)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

// Canonicalize joins base (a handle's own absolute path) with sub (any
// of the accepted subpath shapes documented on subpathSegments) into a
// canonical absolute Path. No "." or ".." resolution is performed —
// canonicalization is pure concatenation plus per-segment coercion.
func Canonicalize(base Path, sub any) (Path, error) {
	segs, err := subpathSegments(sub)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return base.Clone(), nil
	}
	out := make(Path, 0, len(base)+len(segs))
	out = append(out, base...)
	out = append(out, segs...)
	return out, nil
}

// PrefixOf reports whether a is an element-wise prefix of b (including
// the case a equals b).
func PrefixOf(a, b Path) bool {
	if len(a) > len(b) {
		return false
	}
	for i := range a {
		if !segmentsEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func segmentsEqual(a, b Segment) bool {
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	default:
		return false
	}
}

// MayImpact reports whether a mutation at eventPath can impact a
// listener registered at listenerPath: true iff one path is a prefix
// of the other (coarser listener watching a finer change, or finer
// listener bubbling from a coarser change).
func MayImpact(listenerPath, eventPath Path) bool {
	return PrefixOf(listenerPath, eventPath) || PrefixOf(eventPath, listenerPath)
}
