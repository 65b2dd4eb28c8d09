// Package document holds the tree-shaped document the operation
// algebra edits: nested JSON objects addressed by paths.
package document

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cowrite/scribe/ot"
)

var (
	ErrEmptyPath   = errors.New("document: empty path")
	ErrNotFound    = errors.New("document: no value at path")
	ErrNotAnObject = errors.New("document: path segment is not an object")
)

// Document is a mutable tree of JSON values. It implements ot.Doc.
type Document struct {
	root map[string]any
}

// New returns an empty document.
func New() *Document {
	return &Document{root: map[string]any{}}
}

// FromMap returns a document seeded with a deep copy of m.
func FromMap(m map[string]any) *Document {
	return &Document{root: ot.CloneValue(m).(map[string]any)}
}

// Get returns the value at path, if any.
func (d *Document) Get(path ot.Path) (any, bool) {
	parent, ok := d.walk(path, false)
	if !ok {
		return nil, false
	}
	v, ok := parent[path[len(path)-1]]
	return v, ok
}

// Set stores val at path, creating intermediate objects as needed. It
// fails if an intermediate segment holds a non-object value.
func (d *Document) Set(path ot.Path, val any) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	parent, ok := d.walk(path, true)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAnObject, path)
	}
	parent[path[len(path)-1]] = val
	return nil
}

// Delete removes the value at path. It is strict: deleting an absent
// value fails.
func (d *Document) Delete(path ot.Path) error {
	if len(path) == 0 {
		return ErrEmptyPath
	}
	parent, ok := d.walk(path, false)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	leaf := path[len(path)-1]
	if _, ok := parent[leaf]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(parent, leaf)
	return nil
}

// walk returns the object holding the final path segment. With vivify
// set, missing intermediate objects are created.
func (d *Document) walk(path ot.Path, vivify bool) (map[string]any, bool) {
	if len(path) == 0 {
		return nil, false
	}
	cur := d.root
	for _, seg := range path[:len(path)-1] {
		next, ok := cur[seg]
		if !ok {
			if !vivify {
				return nil, false
			}
			m := map[string]any{}
			cur[seg] = m
			cur = m
			continue
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		cur = m
	}
	return cur, true
}

// Apply applies every op of the change in order. Callers that need
// all-or-nothing semantics apply to a Clone and swap on success.
func (d *Document) Apply(c *ot.Change) error {
	return c.Apply(d)
}

// Clone returns an independent deep copy.
func (d *Document) Clone() *Document {
	return FromMap(d.root)
}

// Map returns a deep copy of the document contents.
func (d *Document) Map() map[string]any {
	return ot.CloneValue(d.root).(map[string]any)
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.root)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	root := map[string]any{}
	if err := json.Unmarshal(data, &root); err != nil {
		return err
	}
	d.root = root
	return nil
}

func (d *Document) String() string {
	b, err := json.Marshal(d.root)
	if err != nil {
		return "document{?}"
	}
	return string(b)
}
