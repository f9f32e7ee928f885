package lsm

import (
	"bytes"
	"testing"
)

func TestMemTablePutGet(t *testing.T) {
	mt := NewMemTable(1 << 20)
	mt.Put([]byte("a"), []byte("1"), 1)
	mt.Put([]byte("b"), []byte("2"), 2)

	entry, found := mt.Get([]byte("a"))
	if !found {
		t.Fatal("expected key a to be found")
	}
	if !bytes.Equal(entry.Value, []byte("1")) {
		t.Fatalf("got value %q, want %q", entry.Value, "1")
	}

	if _, found := mt.Get([]byte("missing")); found {
		t.Fatal("expected missing key to be absent")
	}
}

func TestMemTableOverwriteKeepsNewestTimestamp(t *testing.T) {
	mt := NewMemTable(1 << 20)
	mt.Put([]byte("k"), []byte("old"), 1)
	mt.Put([]byte("k"), []byte("new"), 2)

	entry, found := mt.Get([]byte("k"))
	if !found {
		t.Fatal("expected key to be found")
	}
	if !bytes.Equal(entry.Value, []byte("new")) {
		t.Fatalf("got value %q, want %q", entry.Value, "new")
	}
	if mt.Count() != 1 {
		t.Fatalf("expected 1 distinct key after overwrite, got %d", mt.Count())
	}
}

func TestMemTableDeleteWritesTombstone(t *testing.T) {
	mt := NewMemTable(1 << 20)
	mt.Put([]byte("k"), []byte("v"), 1)
	mt.Delete([]byte("k"), 2)

	entry, found := mt.Get([]byte("k"))
	if !found {
		t.Fatal("expected tombstone to still be present in memtable")
	}
	if !entry.Deleted {
		t.Fatal("expected entry to be marked deleted")
	}
}

func TestMemTableSizeDoesNotDoubleCountOnOverwrite(t *testing.T) {
	mt := NewMemTable(1 << 20)
	mt.Put([]byte("k"), []byte("aaaaaaaaaa"), 1)
	sizeAfterFirst := mt.Size()
	mt.Put([]byte("k"), []byte("aaaaaaaaaa"), 2)
	sizeAfterSecond := mt.Size()

	if sizeAfterFirst != sizeAfterSecond {
		t.Fatalf("size changed on overwrite with identical-length value: %d != %d", sizeAfterFirst, sizeAfterSecond)
	}
}

func TestMemTableIsFull(t *testing.T) {
	mt := NewMemTable(32)
	if mt.IsFull() {
		t.Fatal("empty memtable should not be full")
	}
	full := mt.Put([]byte("key"), bytes.Repeat([]byte("x"), 64), 1)
	if !full {
		t.Fatal("expected memtable to report full after exceeding maxSize")
	}
}

func TestMemTableScanOrderedAndBounded(t *testing.T) {
	mt := NewMemTable(1 << 20)
	for _, k := range []string{"c", "a", "e", "b", "d"} {
		mt.Put([]byte(k), []byte(k), 1)
	}

	all := mt.Scan(nil, nil)
	if len(all) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if bytes.Compare(all[i-1].Key, all[i].Key) >= 0 {
			t.Fatalf("scan not in ascending order: %s then %s", all[i-1].Key, all[i].Key)
		}
	}

	bounded := mt.Scan([]byte("b"), []byte("d"))
	if len(bounded) != 3 {
		t.Fatalf("expected 3 entries in [b,d], got %d", len(bounded))
	}
	if string(bounded[0].Key) != "b" || string(bounded[len(bounded)-1].Key) != "d" {
		t.Fatalf("unexpected bounds: first=%s last=%s", bounded[0].Key, bounded[len(bounded)-1].Key)
	}
}

func TestMemTableIterator(t *testing.T) {
	mt := NewMemTable(1 << 20)
	mt.Put([]byte("a"), []byte("1"), 1)
	mt.Put([]byte("b"), []byte("2"), 2)

	it := mt.Iterator()
	count := 0
	for it.Next() {
		if it.Entry() == nil {
			t.Fatal("nil entry while iterator reports Next()==true")
		}
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 entries from iterator, got %d", count)
	}
	if it.Next() {
		t.Fatal("iterator should be exhausted")
	}
}
