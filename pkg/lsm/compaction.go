package lsm

import "sort"

// CompactionStrategy decides when a level has grown past its budget and
// which of its SSTables should be merged down into the next level.
//
// L0 is special: its files can have overlapping key ranges (each is an
// independent memtable flush), so it is triggered purely by file count.
// L1 and deeper are triggered by cumulative size against a threshold that
// grows by LevelSizeMultiplier per level, mirroring classic leveled
// compaction (10MB, 100MB, 1GB, ...).
type CompactionStrategy struct {
	l0Trigger      int
	sizeMultiplier int64
	baseLevelBytes int64
}

// NewCompactionStrategy builds a strategy from config knobs.
func NewCompactionStrategy(l0Trigger int, sizeMultiplier int64) *CompactionStrategy {
	if l0Trigger < 1 {
		l0Trigger = 4
	}
	if sizeMultiplier < 2 {
		sizeMultiplier = 10
	}
	return &CompactionStrategy{
		l0Trigger:      l0Trigger,
		sizeMultiplier: sizeMultiplier,
		baseLevelBytes: 1024 * 1024, // 1MiB
	}
}

// levelSizeThreshold returns the byte budget for level: sizeMultiplier^level * baseLevelBytes.
func (cs *CompactionStrategy) levelSizeThreshold(level int) int64 {
	threshold := cs.baseLevelBytes
	for i := 0; i < level; i++ {
		threshold *= cs.sizeMultiplier
	}
	return threshold
}

// ShouldCompact reports whether level has grown past its budget.
func (cs *CompactionStrategy) ShouldCompact(level int, sstables []*SSTable) bool {
	if level == 0 {
		return len(sstables) >= cs.l0Trigger
	}

	var totalSize int64
	for _, sst := range sstables {
		totalSize += sst.Size()
	}
	return totalSize > cs.levelSizeThreshold(level)
}

// SelectForCompaction picks the SSTables of level to merge down. L0 always
// compacts in full, since its ranges overlap and a partial merge would not
// reduce file count where it matters. Deeper levels select the oldest
// tables first, stopping once the selection's cumulative size clears the
// level's threshold, so compaction work stays proportional to the overrun.
func (cs *CompactionStrategy) SelectForCompaction(level int, sstables []*SSTable) []*SSTable {
	if level == 0 {
		out := make([]*SSTable, len(sstables))
		copy(out, sstables)
		return out
	}

	sorted := make([]*SSTable, len(sstables))
	copy(sorted, sstables)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt() < sorted[j].CreatedAt()
	})

	threshold := cs.levelSizeThreshold(level)
	var totalSize int64
	var selected []*SSTable
	for _, sst := range sorted {
		selected = append(selected, sst)
		totalSize += sst.Size()
		if totalSize > threshold {
			break
		}
	}
	return selected
}
