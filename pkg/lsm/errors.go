package lsm

import "errors"

var (
	// ErrInvalidBloomFilter is returned when bloom filter data is invalid or truncated.
	ErrInvalidBloomFilter = errors.New("invalid bloom filter data")

	// ErrKeyNotFound is returned by LSMTree.Get when a key is absent
	// or its newest entry is a tombstone. SSTable.Get reports absence at the
	// single-file level as (nil, false, nil) instead, since "not in this
	// file" isn't the same as "not in the tree".
	ErrKeyNotFound = errors.New("key not found")

	// ErrClosed is returned when an operation is attempted on a closed LSMTree.
	ErrClosed = errors.New("lsm tree is closed")

	// ErrCorruptData is returned when an on-disk structure fails its own invariants.
	ErrCorruptData = errors.New("corrupt sstable data")

	// ErrResourceExhausted is returned when a flush or compaction cannot complete
	// because the underlying filesystem rejected the write.
	ErrResourceExhausted = errors.New("storage resource exhausted")
)
