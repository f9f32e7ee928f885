package bptree

import "errors"

var (
	// ErrKeyNotFound is returned when a key is not found.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidOrder is returned when the tree's order is too small to split.
	ErrInvalidOrder = errors.New("invalid B+-tree order")

	// ErrDimensionMismatch is returned when a multidimensional key's arity
	// does not match the tree's established dimensionality.
	ErrDimensionMismatch = errors.New("key dimension mismatch")

	// ErrInvalidKey is returned when a key's component cannot be ordered
	// (a non-comparable or mixed-type value).
	ErrInvalidKey = errors.New("invalid key")
)
