package lsm

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/flate"
)

// sstableHeader is the JSON-encoded header written at the start of every
// SSTable file, JSON for forward-compatible format evolution.
type sstableHeader struct {
	Version   int    `json:"version"`
	KeyCount  int    `json:"key_count"`
	MinKey    string `json:"min_key"`
	MaxKey    string `json:"max_key"`
	CreatedAt int64  `json:"created_at"`
}

const sstableFormatVersion = 1

func sstableFileName(level int, micros int64) string {
	return fmt.Sprintf("%d_%d.sst", level, micros)
}

func nowMicros() int64 {
	return time.Now().UnixNano() / 1000
}

// indexEntry is one entry of the trailing sparse index: key -> absolute
// offset of the entry in the data region.
type indexEntry struct {
	key    []byte
	offset int64
}

// SSTable is an immutable, on-disk sorted run with a bloom filter and a
// sparse index, opened either freshly from a writer or recovered from disk.
type SSTable struct {
	path    string
	level   int
	handle  *fileHandle
	bloom   *BloomFilter
	index   []indexEntry
	minKey  []byte
	maxKey  []byte
	numKeys int
	created int64
	dataEnd int64 // absolute offset where the entry region ends (footer starts)
}

// fileHandle reference-counts the holders of an SSTable's file (each reader
// opens its own descriptor) so a compaction that unlinks the file does not
// invalidate a reader with an in-flight Get or Iterator: removal of the path
// is deferred until every holder releases it.
type fileHandle struct {
	mu       sync.Mutex
	refs     int
	path     string
	unlinked bool
}

func newFileHandle(path string) *fileHandle {
	return &fileHandle{refs: 1, path: path}
}

func (h *fileHandle) acquire() {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
}

func (h *fileHandle) release() {
	h.mu.Lock()
	h.refs--
	shouldUnlink := h.refs <= 0 && h.unlinked
	h.mu.Unlock()
	if shouldUnlink {
		os.Remove(h.path)
	}
}

// markUnlinked marks the file for removal once the last reader releases it;
// if nobody currently holds it, it is removed immediately.
func (h *fileHandle) markUnlinked() {
	h.mu.Lock()
	h.unlinked = true
	remove := h.refs <= 0
	h.mu.Unlock()
	if remove {
		os.Remove(h.path)
	}
}

// Path returns the backing file path.
func (sst *SSTable) Path() string { return sst.path }

// Level returns the level this SSTable belongs to.
func (sst *SSTable) Level() int { return sst.level }

// NumEntries returns the number of live+tombstoned keys stored.
func (sst *SSTable) NumEntries() int { return sst.numKeys }

// Size returns the file size in bytes, or 0 if it cannot be stat'd.
func (sst *SSTable) Size() int64 {
	info, err := os.Stat(sst.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// MinKey and MaxKey return the header's recorded key bounds.
func (sst *SSTable) MinKey() []byte { return sst.minKey }
func (sst *SSTable) MaxKey() []byte { return sst.maxKey }

// CreatedAt returns the creation timestamp (microseconds), used as a
// compaction-ordering tiebreaker.
func (sst *SSTable) CreatedAt() int64 { return sst.created }

// Release drops this SSTable's hold on its file handle. Call once per
// SSTable obtained from OpenSSTable/NewSSTableWriter.Finalize when done.
func (sst *SSTable) Release() {
	if sst.handle != nil {
		sst.handle.release()
	}
}

// acquireReader increments the refcount and opens a fresh read-only file
// descriptor positioned at the start of the file.
func (sst *SSTable) acquireReader() (*os.File, error) {
	sst.handle.acquire()
	f, err := os.Open(sst.path)
	if err != nil {
		sst.handle.release()
		return nil, err
	}
	return f, nil
}

func (sst *SSTable) releaseReader(f *os.File) {
	f.Close()
	sst.handle.release()
}

// SSTableWriter assembles a new SSTable. Entries must be written in
// ascending key order; Finalize computes the header, bloom filter, and
// sparse index and commits the file to disk.
type SSTableWriter struct {
	path                string
	indexInterval       int
	compressionMinBytes int
	bloomFPRate         float64

	entriesBuf bytes.Buffer
	index      []indexEntry
	minKey     []byte
	maxKey     []byte
	numKeys    int
	relOffset  int64
}

// NewSSTableWriter prepares a writer that will produce a file at path.
func NewSSTableWriter(path string, indexInterval, compressionMinBytes int, bloomFPRate float64) (*SSTableWriter, error) {
	if indexInterval < 1 {
		indexInterval = 1
	}
	if bloomFPRate <= 0 || bloomFPRate >= 1 {
		bloomFPRate = 0.01
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create sstable directory: %w", err)
	}
	return &SSTableWriter{
		path:                path,
		indexInterval:       indexInterval,
		compressionMinBytes: compressionMinBytes,
		bloomFPRate:         bloomFPRate,
	}, nil
}

// Write appends entry to the SSTable being built. Entries must arrive in
// ascending key order.
func (w *SSTableWriter) Write(entry *Entry) error {
	if w.minKey == nil {
		w.minKey = append([]byte(nil), entry.Key...)
	}
	w.maxKey = append([]byte(nil), entry.Key...)

	if w.numKeys%w.indexInterval == 0 {
		w.index = append(w.index, indexEntry{
			key:    append([]byte(nil), entry.Key...),
			offset: w.relOffset,
		})
	}

	value := entry.Value
	var flags byte
	if !entry.Deleted && len(value) >= w.compressionMinBytes && w.compressionMinBytes > 0 {
		if deflated, err := deflate(value); err == nil && len(deflated) < len(value) {
			value = deflated
			flags |= flagCompressed
		}
	}
	if entry.Deleted {
		flags |= flagDeleted
		value = nil
	}

	n, err := writeEntry(&w.entriesBuf, entry.Key, value, entry.Timestamp, flags)
	if err != nil {
		return err
	}

	w.relOffset += int64(n)
	w.numKeys++
	return nil
}

// Finalize writes the assembled header, bloom filter, entries, and sparse
// index to disk and returns the resulting SSTable. level is attached to the
// returned SSTable for the caller's registry bookkeeping; it is not part of
// the on-disk format.
func (w *SSTableWriter) Finalize(level int) (*SSTable, error) {
	bloom := NewBloomFilter(maxInt(w.numKeys, 1), w.bloomFPRate)
	if err := addAllKeysToBloom(&w.entriesBuf, bloom); err != nil {
		return nil, fmt.Errorf("failed to build bloom filter: %w", err)
	}

	createdAt := nowMicros()
	header := sstableHeader{
		Version:   sstableFormatVersion,
		KeyCount:  w.numKeys,
		MinKey:    string(w.minKey),
		MaxKey:    string(w.maxKey),
		CreatedAt: createdAt,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	file, err := os.Create(w.path)
	if err != nil {
		return nil, fmt.Errorf("failed to create sstable file: %w", err)
	}

	var written int64
	n, err := writeAll(file, lengthPrefixed(headerBytes))
	if err != nil {
		file.Close()
		return nil, err
	}
	written += int64(n)

	bloomBytes := bloom.Marshal()
	n, err = writeAll(file, lengthPrefixed(bloomBytes))
	if err != nil {
		file.Close()
		return nil, err
	}
	written += int64(n)

	dataStart := written
	n, err = writeAll(file, w.entriesBuf.Bytes())
	if err != nil {
		file.Close()
		return nil, err
	}
	dataEnd := dataStart + int64(n)

	footer := new(bytes.Buffer)
	if err := binary.Write(footer, binary.LittleEndian, uint64(dataStart)); err != nil {
		file.Close()
		return nil, err
	}
	for _, e := range w.index {
		absOffset := dataStart + e.offset
		if err := binary.Write(footer, binary.LittleEndian, uint32(len(e.key))); err != nil {
			file.Close()
			return nil, err
		}
		footer.Write(e.key)
		if err := binary.Write(footer, binary.LittleEndian, uint64(absOffset)); err != nil {
			file.Close()
			return nil, err
		}
	}
	if _, err := writeAll(file, footer.Bytes()); err != nil {
		file.Close()
		return nil, err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to sync sstable: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close sstable: %w", err)
	}

	absIndex := make([]indexEntry, len(w.index))
	for i, e := range w.index {
		absIndex[i] = indexEntry{key: e.key, offset: dataStart + e.offset}
	}

	return &SSTable{
		path:    w.path,
		level:   level,
		handle:  newFileHandle(w.path),
		bloom:   bloom,
		index:   absIndex,
		minKey:  w.minKey,
		maxKey:  w.maxKey,
		numKeys: w.numKeys,
		created: createdAt,
		dataEnd: dataEnd,
	}, nil
}

func addAllKeysToBloom(buf *bytes.Buffer, bloom *BloomFilter) error {
	r := bytes.NewReader(buf.Bytes())
	for r.Len() > 0 {
		entry, _, err := readRawEntry(r)
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		bloom.Add(entry.Key)
	}
	return nil
}

// OpenSSTable recovers an SSTable's metadata (header, bloom, sparse index)
// from an existing file. level is inferred from the filename.
func OpenSSTable(path string) (*SSTable, error) {
	level, _, err := parseSSTableFileName(filepath.Base(path))
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sstable: %w", err)
	}
	defer file.Close()

	var headerLen uint32
	if err := binary.Read(file, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(file, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	var header sstableHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}

	var bloomLen uint32
	if err := binary.Read(file, binary.LittleEndian, &bloomLen); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	bloomBytes := make([]byte, bloomLen)
	if _, err := io.ReadFull(file, bloomBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	bloom, err := UnmarshalBloomFilter(bloomBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to load bloom filter: %w", err)
	}

	dataStart, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	// The header carries key_count, so the entry region can be skipped
	// entry-by-entry (without materializing values) to find where the
	// trailing footer begins.
	for i := 0; i < header.KeyCount; i++ {
		if err := skipEntry(file); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
	}
	dataEnd, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	var recordedDataStart uint64
	if err := binary.Read(file, binary.LittleEndian, &recordedDataStart); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
	}
	if int64(recordedDataStart) != dataStart {
		return nil, fmt.Errorf("%w: index footer offset mismatch", ErrCorruptData)
	}

	var index []indexEntry
	for {
		var keyLen uint32
		if err := binary.Read(file, binary.LittleEndian, &keyLen); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(file, key); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		var offset uint64
		if err := binary.Read(file, binary.LittleEndian, &offset); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		index = append(index, indexEntry{key: key, offset: int64(offset)})
	}

	return &SSTable{
		path:    path,
		level:   level,
		handle:  newFileHandle(path),
		bloom:   bloom,
		index:   index,
		minKey:  []byte(header.MinKey),
		maxKey:  []byte(header.MaxKey),
		numKeys: header.KeyCount,
		created: header.CreatedAt,
		dataEnd: dataEnd,
	}, nil
}

func parseSSTableFileName(name string) (level int, micros int64, err error) {
	if _, err := fmt.Sscanf(name, "%d_%d.sst", &level, &micros); err != nil {
		return 0, 0, fmt.Errorf("invalid sstable filename %q: %w", name, err)
	}
	return level, micros, nil
}

// Get performs a point lookup. It returns (nil, false, nil) when the key is
// definitely absent, (entry, true, nil) when found (the entry may be a
// tombstone), and a non-nil error only on I/O or corruption failures.
func (sst *SSTable) Get(key []byte) (*Entry, bool, error) {
	if !sst.bloom.Contains(key) {
		return nil, false, nil
	}
	if bytes.Compare(key, sst.minKey) < 0 || bytes.Compare(key, sst.maxKey) > 0 {
		return nil, false, nil
	}

	idx := sort.Search(len(sst.index), func(i int) bool {
		return bytes.Compare(sst.index[i].key, key) > 0
	})
	if idx > 0 {
		idx--
	}

	f, err := sst.acquireReader()
	if err != nil {
		return nil, false, err
	}
	defer sst.releaseReader(f)

	offset := int64(0)
	if idx < len(sst.index) {
		offset = sst.index[idx].offset
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, false, err
	}

	for {
		pos, err := f.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, false, err
		}
		if pos >= sst.dataEnd {
			return nil, false, nil
		}

		entry, err := readEntry(f)
		if err != nil {
			if err == io.EOF {
				return nil, false, nil
			}
			return nil, false, fmt.Errorf("%w: %v", ErrCorruptData, err)
		}

		cmp := bytes.Compare(entry.Key, key)
		if cmp == 0 {
			return entry, true, nil
		}
		if cmp > 0 {
			return nil, false, nil
		}
	}
}

// Scan reads entries sequentially and emits those within [start, end].
func (sst *SSTable) Scan(start, end []byte) ([]*Entry, error) {
	it, err := sst.Iterator()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*Entry
	for it.Next() {
		e := it.Entry()
		if start != nil && bytes.Compare(e.Key, start) < 0 {
			continue
		}
		if end != nil && bytes.Compare(e.Key, end) > 0 {
			break
		}
		out = append(out, e)
	}
	return out, it.Err()
}

// Iterator returns a forward iterator over every entry in the file.
func (sst *SSTable) Iterator() (*SSTableIterator, error) {
	f, err := sst.acquireReader()
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(sst.fileDataStart(), io.SeekStart); err != nil {
		sst.releaseReader(f)
		return nil, err
	}
	return &SSTableIterator{sst: sst, file: f, dataEnd: sst.dataEnd}, nil
}

// fileDataStart recomputes the absolute offset of the first entry from the
// sparse index's first recorded offset. When the file has no entries it
// returns dataEnd, so an iterator starting there yields nothing.
func (sst *SSTable) fileDataStart() int64 {
	if len(sst.index) > 0 {
		return sst.index[0].offset
	}
	return sst.dataEnd
}

// SSTableIterator sequentially reads entries from an open file handle.
type SSTableIterator struct {
	sst     *SSTable
	file    *os.File
	dataEnd int64
	current *Entry
	err     error
}

// Next advances the iterator, returning false at end-of-data or on error.
func (it *SSTableIterator) Next() bool {
	pos, err := it.file.Seek(0, io.SeekCurrent)
	if err != nil {
		it.err = err
		it.current = nil
		return false
	}
	if pos >= it.dataEnd {
		it.current = nil
		return false
	}

	entry, err := readEntry(it.file)
	if err != nil {
		if err != io.EOF {
			it.err = fmt.Errorf("%w: %v", ErrCorruptData, err)
		}
		it.current = nil
		return false
	}
	it.current = entry
	return true
}

// Entry returns the entry at the iterator's current position.
func (it *SSTableIterator) Entry() *Entry { return it.current }

// Err returns the first error encountered, if any.
func (it *SSTableIterator) Err() error { return it.err }

// Close releases the iterator's file handle.
func (it *SSTableIterator) Close() error {
	it.sst.releaseReader(it.file)
	return nil
}

// Unlink marks the SSTable's backing file for removal once every reader
// holding it releases their handle. Called by the compaction path after a
// registry swap has made the file unreachable to new readers.
func (sst *SSTable) Unlink() {
	sst.handle.release()
	sst.handle.markUnlinked()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// --- low-level entry encoding ---
//
// Format: key_len(4) | key | timestamp(8, float64) | flags(1) | value_len(4) | value

// Entry flag bits, packed into the single flags byte between timestamp and
// value_len. Kept out-of-band rather than inferred from value length so an
// empty live value is never confused with a tombstone.
const (
	flagCompressed byte = 1 << 0
	flagDeleted    byte = 1 << 1
)

func writeEntry(w io.Writer, key, value []byte, timestamp int64, flags byte) (int, error) {
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(key))); err != nil {
		return 0, err
	}
	buf.Write(key)
	if err := binary.Write(buf, binary.LittleEndian, float64(timestamp)); err != nil {
		return 0, err
	}
	buf.WriteByte(flags)
	if err := binary.Write(buf, binary.LittleEndian, uint32(len(value))); err != nil {
		return 0, err
	}
	buf.Write(value)

	return w.Write(buf.Bytes())
}

func readEntry(r io.Reader) (*Entry, error) {
	entry, compressed, err := readRawEntry(r)
	if err != nil {
		return nil, err
	}
	if compressed {
		value, err := inflate(entry.Value)
		if err != nil {
			return nil, err
		}
		entry.Value = value
	}
	return entry, nil
}

func readRawEntry(r io.Reader) (*Entry, bool, error) {
	var keyLen uint32
	if err := binary.Read(r, binary.LittleEndian, &keyLen); err != nil {
		return nil, false, err
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, false, err
	}

	var ts float64
	if err := binary.Read(r, binary.LittleEndian, &ts); err != nil {
		return nil, false, err
	}

	flagBuf := make([]byte, 1)
	if _, err := io.ReadFull(r, flagBuf); err != nil {
		return nil, false, err
	}
	flags := flagBuf[0]
	compressed := flags&flagCompressed != 0
	deleted := flags&flagDeleted != 0

	var valueLen uint32
	if err := binary.Read(r, binary.LittleEndian, &valueLen); err != nil {
		return nil, false, err
	}
	var value []byte
	if valueLen > 0 {
		value = make([]byte, valueLen)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, false, err
		}
	}

	entry := &Entry{
		Key:       key,
		Value:     value,
		Timestamp: int64(math.Round(ts)),
		Deleted:   deleted,
	}
	return entry, compressed, nil
}

// skipEntry advances past one entry without materializing its value.
func skipEntry(f *os.File) error {
	var keyLen uint32
	if err := binary.Read(f, binary.LittleEndian, &keyLen); err != nil {
		return err
	}
	if _, err := f.Seek(int64(keyLen), io.SeekCurrent); err != nil {
		return err
	}
	if _, err := f.Seek(8+1, io.SeekCurrent); err != nil { // timestamp + flags
		return err
	}
	var valueLen uint32
	if err := binary.Read(f, binary.LittleEndian, &valueLen); err != nil {
		return err
	}
	if _, err := f.Seek(int64(valueLen), io.SeekCurrent); err != nil {
		return err
	}
	return nil
}

func lengthPrefixed(data []byte) []byte {
	buf := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(data)))
	copy(buf[4:], data)
	return buf
}

func writeAll(w io.Writer, data []byte) (int, error) {
	n, err := w.Write(data)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	return n, nil
}

func deflate(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func inflate(data []byte) ([]byte, error) {
	fr := flate.NewReader(bytes.NewReader(data))
	defer fr.Close()
	return io.ReadAll(fr)
}

