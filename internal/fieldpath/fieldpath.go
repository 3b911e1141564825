// Package fieldpath models dotted document field addresses as typed segments.
//
// A path such as "addresses.$.locations.0.name" is a sequence of field names,
// resolved array positions and positional placeholders. Keeping the three
// kinds apart lets the positional selector substitute placeholders by
// position in the sequence instead of by scanning text.
package fieldpath

import (
	"fmt"
	"strconv"
	"strings"
)

// Placeholder is the wire token for an unresolved array position.
const Placeholder = "$"

// Kind classifies a path segment.
type Kind int

const (
	// KindField is a named field.
	KindField Kind = iota
	// KindIndex is a resolved array position.
	KindIndex
	// KindPlaceholder is a positional placeholder awaiting resolution.
	KindPlaceholder
)

// Segment is one element of a Path.
type Segment struct {
	Kind  Kind
	Field string // KindField only
	Index int    // KindIndex only
}

// Field returns a named-field segment.
func Field(name string) Segment { return Segment{Kind: KindField, Field: name} }

// Index returns a resolved-position segment.
func Index(i int) Segment { return Segment{Kind: KindIndex, Index: i} }

// Positional returns a placeholder segment.
func Positional() Segment { return Segment{Kind: KindPlaceholder} }

// String renders the segment in wire form.
func (s Segment) String() string {
	switch s.Kind {
	case KindIndex:
		return strconv.Itoa(s.Index)
	case KindPlaceholder:
		return Placeholder
	default:
		return s.Field
	}
}

// Path is an ordered list of segments, outermost first.
type Path []Segment

// New builds a path from field names only.
func New(fields ...string) Path {
	p := make(Path, len(fields))
	for i, f := range fields {
		p[i] = Field(f)
	}
	return p
}

// Parse reads a dotted wire path. Purely numeric segments become indexes and
// "$" becomes a placeholder; everything else is a field name.
func Parse(s string) (Path, error) {
	if s == "" {
		return nil, fmt.Errorf("parse field path: empty path")
	}
	parts := strings.Split(s, ".")
	p := make(Path, 0, len(parts))
	for i, part := range parts {
		switch {
		case part == "":
			return nil, fmt.Errorf("parse field path %q: empty segment at %d", s, i)
		case part == Placeholder:
			p = append(p, Positional())
		case isDigits(part):
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("parse field path %q: %w", s, err)
			}
			p = append(p, Index(n))
		default:
			p = append(p, Field(part))
		}
	}
	if p[0].Kind != KindField {
		return nil, fmt.Errorf("parse field path %q: must start with a field name", s)
	}
	return p, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or for constant paths.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// String renders the path in dotted wire form.
func (p Path) String() string {
	parts := make([]string, len(p))
	for i, s := range p {
		parts[i] = s.String()
	}
	return strings.Join(parts, ".")
}

// Append returns a new path with segs appended. p is never modified.
func (p Path) Append(segs ...Segment) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Placeholders counts the unresolved positions in p.
func (p Path) Placeholders() int {
	n := 0
	for _, s := range p {
		if s.Kind == KindPlaceholder {
			n++
		}
	}
	return n
}

// Positions returns the resolved indexes in p, outermost first.
func (p Path) Positions() []int {
	var out []int
	for _, s := range p {
		if s.Kind == KindIndex {
			out = append(out, s.Index)
		}
	}
	return out
}

// Positional returns a copy of p with every resolved index replaced by a placeholder.
func (p Path) Positional() Path {
	out := make(Path, len(p))
	for i, s := range p {
		if s.Kind == KindIndex {
			s = Positional()
		}
		out[i] = s
	}
	return out
}

// Equal reports whether two paths have the same segments.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}
