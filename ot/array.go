package ot

import (
	"fmt"
	"reflect"
)

// ArrayOp edits an ordered sequence of JSON values: an insertion or a
// deletion of a run of elements at an index. Like TextOp, a delete
// records the removed elements so the op inverts on its own.
type ArrayOp struct {
	Kind   string `json:"kind"`
	Index  int    `json:"index"`
	Values []any  `json:"values"`
}

// NewArrayInsert returns an op inserting values at index.
func NewArrayInsert(index int, values ...any) *ArrayOp {
	return &ArrayOp{Kind: KindInsert, Index: index, Values: values}
}

// NewArrayDelete returns an op removing the given elements at index.
func NewArrayDelete(index int, removed ...any) *ArrayOp {
	return &ArrayOp{Kind: KindDelete, Index: index, Values: removed}
}

// IsNOP reports whether the op leaves any array unchanged.
func (op *ArrayOp) IsNOP() bool {
	return op == nil || len(op.Values) == 0
}

// Clone returns an independent deep copy.
func (op *ArrayOp) Clone() *ArrayOp {
	return &ArrayOp{Kind: op.Kind, Index: op.Index, Values: CloneValues(op.Values)}
}

// Invert returns the op undoing this one.
func (op *ArrayOp) Invert() *ArrayOp {
	inv := op.Clone()
	if op.Kind == KindInsert {
		inv.Kind = KindDelete
	} else {
		inv.Kind = KindInsert
	}
	return inv
}

// Apply applies the op to vals, returning a fresh slice. A delete fails
// if the recorded elements do not structurally match the document.
func (op *ArrayOp) Apply(vals []any) ([]any, error) {
	if op.IsNOP() {
		return vals, nil
	}
	switch op.Kind {
	case KindInsert:
		if op.Index < 0 || op.Index > len(vals) {
			return nil, fmt.Errorf("%w: insert at %d in array of length %d", ErrOutOfBounds, op.Index, len(vals))
		}
		out := make([]any, 0, len(vals)+len(op.Values))
		out = append(out, vals[:op.Index]...)
		out = append(out, CloneValues(op.Values)...)
		out = append(out, vals[op.Index:]...)
		return out, nil
	case KindDelete:
		end := op.Index + len(op.Values)
		if op.Index < 0 || end > len(vals) {
			return nil, fmt.Errorf("%w: delete [%d,%d) in array of length %d", ErrOutOfBounds, op.Index, end, len(vals))
		}
		for i, want := range op.Values {
			if !reflect.DeepEqual(vals[op.Index+i], want) {
				return nil, fmt.Errorf("%w: element %d", ErrValueMismatch, op.Index+i)
			}
		}
		out := make([]any, 0, len(vals)-len(op.Values))
		out = append(out, vals[:op.Index]...)
		out = append(out, vals[end:]...)
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownOpType, op.Kind)
}

// TransformArray derives the bottom two sides of the OT diamond for two
// concurrent array ops, with the same tie-breaking as TransformText.
func TransformArray(a, b *ArrayOp, inplace bool) (*ArrayOp, *ArrayOp) {
	if !inplace {
		a, b = a.Clone(), b.Clone()
	}
	if a.IsNOP() || b.IsNOP() {
		return a, b
	}
	switch {
	case a.Kind == KindInsert && b.Kind == KindInsert:
		if b.Index <= a.Index {
			a.Index += len(b.Values)
		} else {
			b.Index += len(a.Values)
		}
	case a.Kind == KindInsert && b.Kind == KindDelete:
		transformArrayInsertDelete(a, b)
	case a.Kind == KindDelete && b.Kind == KindInsert:
		transformArrayInsertDelete(b, a)
	default:
		transformArrayDeleteDelete(a, b)
	}
	return a, b
}

func transformArrayInsertDelete(ins, del *ArrayOp) {
	end := del.Index + len(del.Values)
	switch {
	case ins.Index <= del.Index:
		del.Index += len(ins.Values)
	case ins.Index >= end:
		ins.Index -= len(del.Values)
	default:
		k := ins.Index - del.Index
		grown := make([]any, 0, len(del.Values)+len(ins.Values))
		grown = append(grown, del.Values[:k]...)
		grown = append(grown, ins.Values...)
		grown = append(grown, del.Values[k:]...)
		del.Values = grown
		ins.Index = del.Index
		ins.Values = nil
	}
}

func transformArrayDeleteDelete(a, b *ArrayOp) {
	aEnd, bEnd := a.Index+len(a.Values), b.Index+len(b.Values)
	switch {
	case aEnd <= b.Index:
		b.Index -= len(a.Values)
	case bEnd <= a.Index:
		a.Index -= len(b.Values)
	default:
		idx := minInt(a.Index, b.Index)
		lo, hi := maxInt(a.Index, b.Index), minInt(aEnd, bEnd)
		aRest := append(append([]any{}, a.Values[:lo-a.Index]...), a.Values[hi-a.Index:]...)
		bRest := append(append([]any{}, b.Values[:lo-b.Index]...), b.Values[hi-b.Index:]...)
		a.Index, a.Values = idx, aRest
		b.Index, b.Values = idx, bRest
	}
}

// ComposeArray merges two sequential ops into one where possible, with
// the same adjacency rules as ComposeText.
func ComposeArray(a, b *ArrayOp) (*ArrayOp, bool) {
	if a.IsNOP() {
		return b.Clone(), true
	}
	if b.IsNOP() {
		return a.Clone(), true
	}
	if a.Kind != b.Kind {
		return nil, false
	}
	switch a.Kind {
	case KindInsert:
		if b.Index < a.Index || b.Index > a.Index+len(a.Values) {
			return nil, false
		}
		k := b.Index - a.Index
		merged := make([]any, 0, len(a.Values)+len(b.Values))
		merged = append(merged, a.Values[:k]...)
		merged = append(merged, b.Values...)
		merged = append(merged, a.Values[k:]...)
		return NewArrayInsert(a.Index, CloneValues(merged)...), true
	case KindDelete:
		if b.Index > a.Index || b.Index+len(b.Values) < a.Index {
			return nil, false
		}
		k := a.Index - b.Index
		merged := make([]any, 0, len(a.Values)+len(b.Values))
		merged = append(merged, b.Values[:k]...)
		merged = append(merged, a.Values...)
		merged = append(merged, b.Values[k:]...)
		return NewArrayDelete(b.Index, CloneValues(merged)...), true
	}
	return nil, false
}
