package bptree

import "bytes"

// Key is a fixed-arity coordinate tuple. A scalar key is a 1-tuple; a
// multidimensional key has arity d fixed for the whole tree. Total order is
// lexicographic: the first differing component decides.
type Key struct {
	Parts []interface{}
}

// NewScalarKey wraps a single orderable value as a 1-tuple key.
func NewScalarKey(v interface{}) Key {
	return Key{Parts: []interface{}{v}}
}

// NewMultidimKey builds a tuple key from its coordinates.
func NewMultidimKey(parts ...interface{}) Key {
	return Key{Parts: append([]interface{}(nil), parts...)}
}

// Dimensions returns the key's arity.
func (k Key) Dimensions() int {
	return len(k.Parts)
}

// Scalar returns the key's sole component, valid only when Dimensions() == 1.
func (k Key) Scalar() interface{} {
	return k.Parts[0]
}

// Promote pads a 1-tuple key to a d-tuple by repeating its sole value, per
// the scalar-to-multidimensional promotion rule: a scalar k becomes
// (k, k, …, k), which preserves relative order among preexisting keys.
func (k Key) Promote(d int) Key {
	parts := make([]interface{}, d)
	for i := range parts {
		parts[i] = k.Parts[0]
	}
	return Key{Parts: parts}
}

// Compare returns -1, 0, or 1 as k is less than, equal to, or greater than
// other. Both keys must share the same arity; callers (the tree) enforce
// that invariant before comparisons ever happen.
func (k Key) Compare(other Key) (int, error) {
	n := len(k.Parts)
	if n != len(other.Parts) {
		return 0, ErrDimensionMismatch
	}
	for i := 0; i < n; i++ {
		cmp, err := compareComponent(k.Parts[i], other.Parts[i])
		if err != nil {
			return 0, err
		}
		if cmp != 0 {
			return cmp, nil
		}
	}
	return 0, nil
}

// compareComponent orders two same-typed orderable values. Unlike a loose
// type switch that falls back to "equal" on a mismatch, an unorderable or
// mismatched pair is reported as ErrInvalidKey rather than silently treated
// as a tie. Numeric comparison is promoted to float64 whenever either side
// is a float, regardless of which side is the receiver and which is the
// argument, so a < b and b > a always agree for mixed int/float keys.
func compareComponent(a, b interface{}) (int, error) {
	switch va := a.(type) {
	case int:
		return compareComponent(int64(va), b)
	case int32:
		return compareComponent(int64(va), b)
	case int64:
		if isFloatKind(b) {
			return compareComponent(float64(va), b)
		}
		vb, err := toInt64(b)
		if err != nil {
			return 0, err
		}
		return compareOrdered(va, vb), nil
	case float32:
		return compareComponent(float64(va), b)
	case float64:
		vb, err := toFloat64(b)
		if err != nil {
			return 0, err
		}
		return compareOrdered(va, vb), nil
	case string:
		vb, ok := b.(string)
		if !ok {
			return 0, ErrInvalidKey
		}
		return bytes.Compare([]byte(va), []byte(vb)), nil
	case []byte:
		vb, ok := b.([]byte)
		if !ok {
			return 0, ErrInvalidKey
		}
		return bytes.Compare(va, vb), nil
	default:
		return 0, ErrInvalidKey
	}
}

// isFloatKind reports whether v holds a float32 or float64.
func isFloatKind(v interface{}) bool {
	switch v.(type) {
	case float32, float64:
		return true
	default:
		return false
	}
}

func toInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	}
	return 0, ErrInvalidKey
}

func toFloat64(v interface{}) (float64, error) {
	switch n := v.(type) {
	case float32:
		return float64(n), nil
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, ErrInvalidKey
}

func compareOrdered[T int64 | float64](a, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}
