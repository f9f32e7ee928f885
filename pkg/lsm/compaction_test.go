package lsm

import "testing"

func TestCompactionStrategyL0TriggersOnFileCount(t *testing.T) {
	cs := NewCompactionStrategy(4, 10)
	tables := make([]*SSTable, 3)
	if cs.ShouldCompact(0, tables) {
		t.Fatal("should not compact L0 below trigger count")
	}
	tables = append(tables, &SSTable{})
	if !cs.ShouldCompact(0, tables) {
		t.Fatal("should compact L0 at trigger count")
	}
}

func TestCompactionStrategyLevelSizeThreshold(t *testing.T) {
	cs := NewCompactionStrategy(4, 10)
	if got := cs.levelSizeThreshold(0); got != 1024*1024 {
		t.Fatalf("L0 threshold: got %d, want %d", got, 1024*1024)
	}
	if got := cs.levelSizeThreshold(1); got != 10*1024*1024 {
		t.Fatalf("L1 threshold: got %d, want %d", got, 10*1024*1024)
	}
	if got := cs.levelSizeThreshold(2); got != 100*1024*1024 {
		t.Fatalf("L2 threshold: got %d, want %d", got, 100*1024*1024)
	}
}

func TestCompactionStrategySelectL0TakesAll(t *testing.T) {
	cs := NewCompactionStrategy(4, 10)
	tables := []*SSTable{{}, {}, {}}
	selected := cs.SelectForCompaction(0, tables)
	if len(selected) != len(tables) {
		t.Fatalf("expected all L0 tables selected, got %d of %d", len(selected), len(tables))
	}
}
