package bptree

import "testing"

func TestKeyCompareScalar(t *testing.T) {
	a := NewScalarKey(int64(1))
	b := NewScalarKey(int64(2))

	cmp, err := a.Compare(b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp >= 0 {
		t.Fatalf("expected 1 < 2, got cmp=%d", cmp)
	}

	cmp, err = a.Compare(a)
	if err != nil || cmp != 0 {
		t.Fatalf("expected equal keys to compare 0, got cmp=%d err=%v", cmp, err)
	}
}

func TestKeyCompareLexicographicTuple(t *testing.T) {
	a := NewMultidimKey(int64(1), int64(9))
	b := NewMultidimKey(int64(1), int64(2))
	c := NewMultidimKey(int64(2), int64(0))

	cmp, err := a.Compare(b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp <= 0 {
		t.Fatalf("expected (1,9) > (1,2) since second component decides, got cmp=%d", cmp)
	}

	cmp, err = a.Compare(c)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp >= 0 {
		t.Fatalf("expected (1,9) < (2,0) since first component decides, got cmp=%d", cmp)
	}
}

func TestKeyCompareDimensionMismatch(t *testing.T) {
	a := NewScalarKey(int64(1))
	b := NewMultidimKey(int64(1), int64(2))
	if _, err := a.Compare(b); err != ErrDimensionMismatch {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestKeyPromoteRepeatsValue(t *testing.T) {
	k := NewScalarKey(int64(7))
	promoted := k.Promote(3)
	if promoted.Dimensions() != 3 {
		t.Fatalf("expected arity 3, got %d", promoted.Dimensions())
	}
	for i, v := range promoted.Parts {
		if v.(int64) != 7 {
			t.Fatalf("position %d: got %v, want 7", i, v)
		}
	}
}

func TestKeyCompareStrings(t *testing.T) {
	a := NewScalarKey("apple")
	b := NewScalarKey("banana")
	cmp, err := a.Compare(b)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if cmp >= 0 {
		t.Fatalf("expected apple < banana, got cmp=%d", cmp)
	}
}

func TestKeyCompareMismatchedTypesFails(t *testing.T) {
	a := NewScalarKey(int64(1))
	b := NewScalarKey("one")
	if _, err := a.Compare(b); err != ErrInvalidKey {
		t.Fatalf("expected ErrInvalidKey for mismatched component types, got %v", err)
	}
}

func TestKeyCompareIntFloatIsSymmetric(t *testing.T) {
	intKey := NewScalarKey(int64(2))
	floatKey := NewScalarKey(float64(1.5))

	cmp, err := intKey.Compare(floatKey)
	if err != nil {
		t.Fatalf("Compare(int64, float64) failed: %v", err)
	}
	if cmp <= 0 {
		t.Fatalf("expected 2 > 1.5, got cmp=%d", cmp)
	}

	cmp, err = floatKey.Compare(intKey)
	if err != nil {
		t.Fatalf("Compare(float64, int64) failed: %v", err)
	}
	if cmp >= 0 {
		t.Fatalf("expected 1.5 < 2, got cmp=%d", cmp)
	}
}
