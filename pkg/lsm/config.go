package lsm

import "time"

// Config holds LSMTree configuration.
type Config struct {
	Dir string

	// MemTableSize is the rotation threshold in bytes.
	MemTableSize int64

	// BloomFPRate is the target false-positive rate for new SSTable bloom filters.
	BloomFPRate float64

	// L0CompactionTrigger is the L0 file count that triggers compaction.
	L0CompactionTrigger int

	// LevelSizeMultiplier is the per-level size growth factor (10^L * 1MiB).
	LevelSizeMultiplier int64

	// IndexInterval controls how often a sparse index entry is written (every N keys).
	IndexInterval int

	// FlushInterval is the flush worker's polling cadence.
	FlushInterval time.Duration

	// CompactionInterval is the compaction worker's polling cadence.
	CompactionInterval time.Duration

	// ValueCompressionMinBytes is the size at or above which a value is attempted for compression.
	ValueCompressionMinBytes int

	// Verbose routes background worker lifecycle events (a flush or compaction
	// completing) to klog.V(2); without it they are not logged at all. Errors
	// go to the default logger either way.
	Verbose bool

	// Logger, if set, overrides the default log.Printf-based sink.
	Logger func(format string, args ...interface{})
}

// DefaultConfig returns reasonable defaults for a new data directory.
func DefaultConfig(dir string) *Config {
	return &Config{
		Dir:                      dir,
		MemTableSize:             64 * 1024 * 1024,
		BloomFPRate:              0.01,
		L0CompactionTrigger:      4,
		LevelSizeMultiplier:      10,
		IndexInterval:            100,
		FlushInterval:            1000 * time.Millisecond,
		CompactionInterval:       10000 * time.Millisecond,
		ValueCompressionMinBytes: 100,
	}
}
