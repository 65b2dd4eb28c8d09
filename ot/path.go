package ot

import "strings"

// Path identifies a property inside the document tree as an ordered
// sequence of segment names. A Path is a value: never mutate one after
// construction.
type Path []string

// Equal reports segment-wise equality.
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

// Clone returns an independent copy of the path.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	q := make(Path, len(p))
	copy(q, p)
	return q
}

func (p Path) String() string {
	return strings.Join(p, ".")
}
