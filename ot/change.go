package ot

import "time"

// Meta describes who produced a change and when.
type Meta struct {
	Author string    `json:"author,omitempty"`
	At     time.Time `json:"at,omitempty"`
}

// Change is an ordered batch of object ops treated as one logical
// edit. Once a change has been appended to the hub's log it is never
// mutated again.
type Change struct {
	Ops  []*ObjectOp `json:"ops"`
	Meta *Meta       `json:"meta,omitempty"`
}

// NewChange returns a change over the given ops.
func NewChange(ops ...*ObjectOp) *Change {
	return &Change{Ops: ops}
}

// Clone returns an independent deep copy.
func (c *Change) Clone() *Change {
	out := &Change{Ops: make([]*ObjectOp, len(c.Ops))}
	for i, op := range c.Ops {
		out.Ops[i] = op.Clone()
	}
	if c.Meta != nil {
		m := *c.Meta
		out.Meta = &m
	}
	return out
}

// Invert returns the change undoing this one: every op inverted, in
// reverse order.
func (c *Change) Invert() *Change {
	out := &Change{Ops: make([]*ObjectOp, len(c.Ops))}
	for i, op := range c.Ops {
		out.Ops[len(c.Ops)-1-i] = op.Invert()
	}
	if c.Meta != nil {
		m := *c.Meta
		out.Meta = &m
	}
	return out
}

// IsNOP reports whether every op in the change is a no-op.
func (c *Change) IsNOP() bool {
	for _, op := range c.Ops {
		if !op.IsNOP() {
			return false
		}
	}
	return true
}

// Apply applies the ops in order. It stops at the first failure, so
// callers that need atomicity apply to a throwaway copy of the
// document and swap on success.
func (c *Change) Apply(doc Doc) error {
	for _, op := range c.Ops {
		if err := op.Apply(doc); err != nil {
			return err
		}
	}
	return nil
}

// TransformChanges transforms two concurrent change batches produced
// against the same base. Every op of b is rebased across every op of a
// and vice versa; ops that collapse mid-sequence stay in the batch as
// NOPs so indices keep lining up. Unless opts.InPlace is set both
// changes are cloned first.
func TransformChanges(a, b *Change, opts *TransformOptions) (*Change, *Change, error) {
	if opts == nil {
		opts = &TransformOptions{}
	}
	if !opts.InPlace {
		a, b = a.Clone(), b.Clone()
	}
	pair := &TransformOptions{InPlace: true, NoConflict: opts.NoConflict}
	for j := range b.Ops {
		bOp := b.Ops[j]
		for i := range a.Ops {
			var err error
			a.Ops[i], bOp, err = Transform(a.Ops[i], bOp, pair)
			if err != nil {
				return nil, nil, err
			}
		}
		b.Ops[j] = bOp
	}
	return a, b, nil
}
