package ot

import (
	"encoding/json"
	"fmt"
)

// OpType tags the ObjectOp variant.
type OpType string

const (
	OpNop    OpType = "NOP"
	OpCreate OpType = "create"
	OpDelete OpType = "delete"
	OpUpdate OpType = "update"
	OpSet    OpType = "set"
)

// Doc is the document adapter operations apply against. Set creates
// intermediate containers as needed; Delete is strict and fails on an
// absent path. Errors from the adapter surface verbatim.
type Doc interface {
	Get(path Path) (any, bool)
	Set(path Path, val any) error
	Delete(path Path) error
}

// ObjectOp is a structural operation on one property of the document
// tree. Exactly one variant is populated:
//
//   - Create: Val is the value brought into existence at Path.
//   - Delete: Val records the value removed, so the op inverts.
//   - Update: Diff is the nested text or array edit of the value.
//   - Set: Val replaces the value, Original records the one replaced.
//     A nil Val or Original means unset.
//
// After construction an op is a value; Apply never mutates it and all
// values handed to the document are deep copies.
type ObjectOp struct {
	Type     OpType
	Path     Path
	Val      any
	Original any
	Diff     LeafOp
}

// Nop returns the identity operation.
func Nop() *ObjectOp {
	return &ObjectOp{Type: OpNop}
}

// Create returns an op bringing val into existence at path.
func Create(path Path, val any) (*ObjectOp, error) {
	if len(path) == 0 {
		return nil, &MalformedOpError{Reason: "create without a path"}
	}
	if val == nil {
		return nil, &MalformedOpError{Reason: "create without a value"}
	}
	return &ObjectOp{Type: OpCreate, Path: path.Clone(), Val: CloneValue(val)}, nil
}

// Delete returns an op removing the value at path. The prior value is
// recorded for invertibility.
func Delete(path Path, prior any) (*ObjectOp, error) {
	if len(path) == 0 {
		return nil, &MalformedOpError{Reason: "delete without a path"}
	}
	if prior == nil {
		return nil, &MalformedOpError{Reason: "delete without the prior value"}
	}
	return &ObjectOp{Type: OpDelete, Path: path.Clone(), Val: CloneValue(prior)}, nil
}

// Update returns an op applying a nested leaf edit to the value at
// path.
func Update(path Path, diff LeafOp) (*ObjectOp, error) {
	if len(path) == 0 {
		return nil, &MalformedOpError{Reason: "update without a path"}
	}
	if diff == nil {
		return nil, &MalformedOpError{Reason: "update without a diff"}
	}
	return &ObjectOp{Type: OpUpdate, Path: path.Clone(), Diff: diff.cloneLeaf()}, nil
}

// Set returns an op replacing the value at path, recording both sides.
// A nil val means the property becomes unset; a nil original means it
// was unset.
func Set(path Path, val, original any) (*ObjectOp, error) {
	if len(path) == 0 {
		return nil, &MalformedOpError{Reason: "set without a path"}
	}
	return &ObjectOp{Type: OpSet, Path: path.Clone(), Val: CloneValue(val), Original: CloneValue(original)}, nil
}

// IsNOP reports whether the op leaves any document unchanged.
func (op *ObjectOp) IsNOP() bool {
	if op == nil || op.Type == OpNop {
		return true
	}
	return op.Type == OpUpdate && op.Diff.IsNOP()
}

// PropertyType is the persisted discriminant of an Update's diff. It is
// empty for other variants.
func (op *ObjectOp) PropertyType() LeafKind {
	if op.Type != OpUpdate || op.Diff == nil {
		return ""
	}
	return op.Diff.leafKind()
}

// Clone returns an independent deep copy.
func (op *ObjectOp) Clone() *ObjectOp {
	c := &ObjectOp{
		Type:     op.Type,
		Path:     op.Path.Clone(),
		Val:      CloneValue(op.Val),
		Original: CloneValue(op.Original),
	}
	if op.Diff != nil {
		c.Diff = op.Diff.cloneLeaf()
	}
	return c
}

// Invert returns the op that restores the prior state when applied
// after this one.
func (op *ObjectOp) Invert() *ObjectOp {
	inv := op.Clone()
	switch op.Type {
	case OpCreate:
		inv.Type = OpDelete
	case OpDelete:
		inv.Type = OpCreate
	case OpUpdate:
		inv.Diff = op.Diff.invertLeaf()
	case OpSet:
		inv.Val, inv.Original = inv.Original, inv.Val
	}
	return inv
}

// Apply applies the op to doc. A create over an existing value
// overwrites it; a delete of an absent value fails with the adapter's
// error.
func (op *ObjectOp) Apply(doc Doc) error {
	switch op.Type {
	case OpNop:
		return nil
	case OpCreate:
		return doc.Set(op.Path, CloneValue(op.Val))
	case OpDelete:
		return doc.Delete(op.Path)
	case OpUpdate:
		old, ok := doc.Get(op.Path)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNoValue, op.Path)
		}
		next, err := op.Diff.applyLeaf(old)
		if err != nil {
			return err
		}
		return doc.Set(op.Path, next)
	case OpSet:
		if op.Val == nil {
			if _, ok := doc.Get(op.Path); ok {
				return doc.Delete(op.Path)
			}
			return nil
		}
		return doc.Set(op.Path, CloneValue(op.Val))
	}
	return fmt.Errorf("%w: %q", ErrUnknownOpType, op.Type)
}

// TransformOptions control Transform. The zero value clones both
// operands and resolves same-path pairs instead of reporting them.
type TransformOptions struct {
	// InPlace mutates the operands instead of cloning them.
	InPlace bool
	// NoConflict makes Transform fail with a ConflictError whenever
	// both ops touch the same path.
	NoConflict bool
}

// Transform rewrites two operations produced concurrently against the
// same base state so that applying a' after b, or b' after a, reaches
// the same document. Same-path Set–Set and Delete–Set pairs resolve in
// favor of b: the hub passes the already-committed op as a and the op
// being rebased forward as b, so the later commit wins. A Delete against
// an Update survives in either order and absorbs the update; two
// Deletes both become NOPs.
func Transform(a, b *ObjectOp, opts *TransformOptions) (*ObjectOp, *ObjectOp, error) {
	if opts == nil {
		opts = &TransformOptions{}
	}
	if !opts.InPlace {
		a, b = a.Clone(), b.Clone()
	}
	if a.IsNOP() || b.IsNOP() || !a.Path.Equal(b.Path) {
		return a, b, nil
	}
	if opts.NoConflict {
		return nil, nil, &ConflictError{A: a, B: b}
	}
	if a.Type == OpCreate || b.Type == OpCreate {
		// Two correct ops from one base state can never pair a create
		// with anything else on the same path.
		return nil, nil, &IllegalTransformError{A: a, B: b}
	}
	switch {
	case a.Type == OpDelete && b.Type == OpDelete:
		a.becomeNop()
		b.becomeNop()
	case a.Type == OpDelete && b.Type == OpUpdate:
		// The delete survives and absorbs the update: it must remove
		// the post-update value to stay invertible.
		next, err := b.Diff.applyLeaf(a.Val)
		if err != nil {
			return nil, nil, err
		}
		a.Val = next
		b.becomeNop()
	case a.Type == OpUpdate && b.Type == OpDelete:
		next, err := a.Diff.applyLeaf(b.Val)
		if err != nil {
			return nil, nil, err
		}
		b.Val = next
		a.becomeNop()
	case a.Type == OpDelete && b.Type == OpSet:
		// The set replaces a value the delete already removed.
		a.becomeNop()
		b.Original = nil
	case a.Type == OpSet && b.Type == OpDelete:
		b.Val = CloneValue(a.Val)
		a.becomeNop()
	case a.Type == OpSet && b.Type == OpSet:
		b.Original = CloneValue(a.Val)
		a.becomeNop()
	case a.Type == OpUpdate && b.Type == OpUpdate:
		if a.Diff.leafKind() != b.Diff.leafKind() {
			return nil, nil, &IllegalTransformError{A: a, B: b}
		}
		var err error
		a.Diff, b.Diff, err = transformLeaf(a.Diff, b.Diff)
		if err != nil {
			return nil, nil, err
		}
	default:
		// update against set in either order.
		return nil, nil, &IllegalTransformError{A: a, B: b}
	}
	return a, b, nil
}

func (op *ObjectOp) becomeNop() {
	*op = ObjectOp{Type: OpNop}
}

type objectOpJSON struct {
	Type         OpType          `json:"type"`
	Path         []string        `json:"path,omitempty"`
	Val          json.RawMessage `json:"val,omitempty"`
	Original     json.RawMessage `json:"original,omitempty"`
	PropertyType LeafKind        `json:"propertyType,omitempty"`
	Diff         json.RawMessage `json:"diff,omitempty"`
}

// MarshalJSON produces the canonical persisted form; the diff is tagged
// with its propertyType so it can be reconstructed.
func (op *ObjectOp) MarshalJSON() ([]byte, error) {
	out := objectOpJSON{Type: op.Type, Path: op.Path}
	var err error
	if op.Val != nil {
		if out.Val, err = json.Marshal(op.Val); err != nil {
			return nil, err
		}
	}
	if op.Original != nil {
		if out.Original, err = json.Marshal(op.Original); err != nil {
			return nil, err
		}
	}
	if op.Type == OpUpdate {
		out.PropertyType = op.Diff.leafKind()
		if out.Diff, err = json.Marshal(op.Diff); err != nil {
			return nil, err
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs an op, enforcing the same invariants as
// the constructors.
func (op *ObjectOp) UnmarshalJSON(data []byte) error {
	var in objectOpJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return &MalformedOpError{Reason: err.Error()}
	}
	var val, original any
	if in.Val != nil {
		if err := json.Unmarshal(in.Val, &val); err != nil {
			return &MalformedOpError{Reason: "bad val: " + err.Error()}
		}
	}
	if in.Original != nil {
		if err := json.Unmarshal(in.Original, &original); err != nil {
			return &MalformedOpError{Reason: "bad original: " + err.Error()}
		}
	}
	switch in.Type {
	case OpNop:
		*op = ObjectOp{Type: OpNop}
		return nil
	case OpCreate:
		built, err := Create(in.Path, val)
		if err != nil {
			return err
		}
		*op = *built
		return nil
	case OpDelete:
		built, err := Delete(in.Path, val)
		if err != nil {
			return err
		}
		*op = *built
		return nil
	case OpUpdate:
		if in.Diff == nil {
			return &MalformedOpError{Reason: "update without a diff"}
		}
		diff, err := leafFromJSON(in.PropertyType, in.Diff)
		if err != nil {
			return err
		}
		built, err := Update(in.Path, diff)
		if err != nil {
			return err
		}
		*op = *built
		return nil
	case OpSet:
		built, err := Set(in.Path, val, original)
		if err != nil {
			return err
		}
		*op = *built
		return nil
	}
	return &MalformedOpError{Reason: "unknown op type " + string(in.Type)}
}
