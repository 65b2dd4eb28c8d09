package ot

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestTextApply verifies insert and delete application.
func TestTextApply(t *testing.T) {
	got, err := NewTextInsert(5, "!").Apply("Hello")
	if err != nil {
		t.Errorf("error: %v\n", err)
	}
	if got != "Hello!" {
		t.Errorf("got != want; got = %v, expected = %v\n", got, "Hello!")
	}

	got, err = NewTextDelete(1, "ell").Apply("Hello")
	if err != nil {
		t.Errorf("error: %v\n", err)
	}
	if got != "Ho" {
		t.Errorf("got != want; got = %v, expected = %v\n", got, "Ho")
	}
}

func TestTextApplyOutOfBounds(t *testing.T) {
	if _, err := NewTextInsert(6, "!").Apply("Hello"); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := NewTextDelete(3, "lol").Apply("Hello"); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
}

// TestTextApplyMismatch checks that a delete refuses to remove text the
// document does not hold.
func TestTextApplyMismatch(t *testing.T) {
	if _, err := NewTextDelete(0, "Hola").Apply("Hello"); !errors.Is(err, ErrValueMismatch) {
		t.Errorf("expected ErrValueMismatch, got %v", err)
	}
}

// TestTextApplyMultibyte ensures offsets count runes, not bytes.
func TestTextApplyMultibyte(t *testing.T) {
	got, err := NewTextInsert(3, "™").Apply("héllo")
	if err != nil {
		t.Errorf("error: %v\n", err)
	}
	if got != "hél™lo" {
		t.Errorf("got != want; got = %v, expected = %v\n", got, "hél™lo")
	}

	got, err = NewTextDelete(1, "éll").Apply("héllo")
	if err != nil {
		t.Errorf("error: %v\n", err)
	}
	if got != "ho" {
		t.Errorf("got != want; got = %v, expected = %v\n", got, "ho")
	}

	// Bounds and mismatch checks count runes as well.
	if _, err := NewTextDelete(3, "lo!").Apply("héllo"); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("expected ErrOutOfBounds, got %v", err)
	}
	if _, err := NewTextDelete(0, "he").Apply("héllo"); !errors.Is(err, ErrValueMismatch) {
		t.Errorf("expected ErrValueMismatch, got %v", err)
	}
}

func TestTextInvertMultibyte(t *testing.T) {
	op := NewTextDelete(1, "éllö")
	mid, err := op.Apply("héllö!")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	got, err := op.Invert().Apply(mid)
	if err != nil {
		t.Fatalf("invert apply: %v", err)
	}
	if got != "héllö!" {
		t.Errorf("got != want; got = %v, expected = %v\n", got, "héllö!")
	}
}

// TestTextInvert verifies apply-then-invert restores the input.
func TestTextInvert(t *testing.T) {
	ops := []*TextOp{
		NewTextInsert(0, ">"),
		NewTextInsert(5, "!"),
		NewTextDelete(1, "ell"),
	}

	for _, op := range ops {
		mid, err := op.Apply("Hello")
		if err != nil {
			t.Fatalf("apply: %v", err)
		}
		got, err := op.Invert().Apply(mid)
		if err != nil {
			t.Fatalf("invert apply: %v", err)
		}
		if got != "Hello" {
			t.Errorf("got != want; got = %v, expected = %v\n", got, "Hello")
		}
	}
}

func TestTextDoubleInvert(t *testing.T) {
	op := NewTextDelete(1, "ell")
	if diff := cmp.Diff(op, op.Invert().Invert()); diff != "" {
		t.Errorf("double invert mismatch (-want +got):\n%s", diff)
	}
}

// TestTextTransformConvergence checks that applying b then a' matches
// applying a then b'.
func TestTextTransformConvergence(t *testing.T) {
	tests := []struct {
		name string
		base string
		a, b *TextOp
	}{
		{"insert insert tie", "Hello", NewTextInsert(2, "X"), NewTextInsert(2, "Y")},
		{"insert before insert", "Hello", NewTextInsert(5, "!"), NewTextInsert(0, ">")},
		{"insert inside delete", "abcdef", NewTextInsert(3, "X"), NewTextDelete(1, "bcde")},
		{"delete then insert after", "abcdef", NewTextDelete(0, "ab"), NewTextInsert(5, "Z")},
		{"overlapping deletes", "abcdef", NewTextDelete(1, "bcd"), NewTextDelete(2, "cde")},
		{"nested deletes", "abcdef", NewTextDelete(0, "abcdef"), NewTextDelete(2, "cd")},
		{"disjoint deletes", "abcdef", NewTextDelete(0, "ab"), NewTextDelete(4, "ef")},
		{"multibyte insert tie", "héllo", NewTextInsert(1, "ä"), NewTextInsert(1, "ö")},
		{"multibyte insert inside delete", "héllö!", NewTextInsert(3, "™"), NewTextDelete(1, "éllö")},
		{"multibyte overlapping deletes", "héllö!", NewTextDelete(0, "hél"), NewTextDelete(2, "llö")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a2, b2 := TransformText(tt.a, tt.b, false)

			viaB, err := tt.b.Apply(tt.base)
			if err != nil {
				t.Fatalf("apply b: %v", err)
			}
			viaB, err = a2.Apply(viaB)
			if err != nil {
				t.Fatalf("apply a': %v", err)
			}

			viaA, err := tt.a.Apply(tt.base)
			if err != nil {
				t.Fatalf("apply a: %v", err)
			}
			viaA, err = b2.Apply(viaA)
			if err != nil {
				t.Fatalf("apply b': %v", err)
			}

			if viaA != viaB {
				t.Errorf("diverged; a then b' = %q, b then a' = %q", viaA, viaB)
			}
		})
	}
}

// TestTextTransformDeterminism re-runs a transform on fresh clones and
// expects structurally identical results.
func TestTextTransformDeterminism(t *testing.T) {
	a, b := NewTextInsert(2, "X"), NewTextDelete(1, "bcd")

	a1, b1 := TransformText(a.Clone(), b.Clone(), false)
	a2, b2 := TransformText(a.Clone(), b.Clone(), false)

	if diff := cmp.Diff(a1, a2); diff != "" {
		t.Errorf("a' differs across runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(b1, b2); diff != "" {
		t.Errorf("b' differs across runs (-first +second):\n%s", diff)
	}
}

// TestTextTransformClones checks that the default mode leaves the
// inputs untouched.
func TestTextTransformClones(t *testing.T) {
	a, b := NewTextInsert(5, "!"), NewTextInsert(0, ">")
	TransformText(a, b, false)

	if a.Pos != 5 || b.Pos != 0 {
		t.Errorf("inputs mutated: a = %+v, b = %+v", a, b)
	}
}

func TestTextCompose(t *testing.T) {
	tests := []struct {
		name string
		a, b *TextOp
		want *TextOp
		ok   bool
	}{
		{"inserts merge", NewTextInsert(1, "bc"), NewTextInsert(3, "de"), NewTextInsert(1, "bcde"), true},
		{"deletes merge", NewTextDelete(2, "cd"), NewTextDelete(1, "be"), NewTextDelete(1, "bcde"), true},
		{"multibyte inserts merge", NewTextInsert(1, "éö"), NewTextInsert(2, "™"), NewTextInsert(1, "é™ö"), true},
		{"inserts apart", NewTextInsert(0, "a"), NewTextInsert(5, "b"), nil, false},
		{"mixed kinds", NewTextInsert(0, "a"), NewTextDelete(0, "a"), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ComposeText(tt.a, tt.b)
			if ok != tt.ok {
				t.Fatalf("ok = %v, expected %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("composed op mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
