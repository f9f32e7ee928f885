package lsm

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"
)

// BloomFilter is a probabilistic set-membership test with zero false
// negatives: Contains reports definite absence or possible presence.
type BloomFilter struct {
	bits      []byte // bit array, size bits total
	size      int    // m, bit array size in bits
	numHashes int    // k, number of hash derivations per key
}

// NewBloomFilter sizes a filter for expectedItems entries at the given
// target false-positive rate, using the standard formulas:
//
//	m = ceil(-n*ln(p) / (ln(2))^2)
//	k = round((m/n) * ln(2))
func NewBloomFilter(expectedItems int, fpRate float64) *BloomFilter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}

	n := float64(expectedItems)
	m := math.Ceil(-n * math.Log(fpRate) / (math.Ln2 * math.Ln2))
	if m < 8 {
		m = 8
	}
	k := int(math.Round((m / n) * math.Ln2))
	if k < 1 {
		k = 1
	}

	size := int(m)
	byteSize := (size + 7) / 8

	return &BloomFilter{
		bits:      make([]byte, byteSize),
		size:      size,
		numHashes: k,
	}
}

// Add sets the k bits derived from key.
func (bf *BloomFilter) Add(key []byte) {
	for i := 0; i < bf.numHashes; i++ {
		bf.setBit(bf.hash(key, i))
	}
}

// Contains reports whether key might be in the set. false is definitive
// absence; true may be a false positive.
func (bf *BloomFilter) Contains(key []byte) bool {
	for i := 0; i < bf.numHashes; i++ {
		if !bf.getBit(bf.hash(key, i)) {
			return false
		}
	}
	return true
}

func (bf *BloomFilter) setBit(bitIndex uint64) {
	byteIndex := bitIndex / 8
	bitOffset := bitIndex % 8
	bf.bits[byteIndex] |= 1 << bitOffset
}

func (bf *BloomFilter) getBit(bitIndex uint64) bool {
	byteIndex := bitIndex / 8
	bitOffset := bitIndex % 8
	return bf.bits[byteIndex]&(1<<bitOffset) != 0
}

// hash derives the i-th independent slot for key from a blake2b-256 digest
// of key salted with i; each of the k slots costs one digest.
func (bf *BloomFilter) hash(key []byte, i int) uint64 {
	salted := make([]byte, len(key)+4)
	copy(salted, key)
	binary.LittleEndian.PutUint32(salted[len(key):], uint32(i))

	sum := blake2b.Sum256(salted)
	h := binary.LittleEndian.Uint64(sum[:8])
	return h % uint64(bf.size)
}

// Marshal serializes the bloom filter as (size, numHashes, bits).
func (bf *BloomFilter) Marshal() []byte {
	buf := make([]byte, 8+len(bf.bits))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(bf.size))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(bf.numHashes))
	copy(buf[8:], bf.bits)
	return buf
}

// UnmarshalBloomFilter reconstructs a BloomFilter byte-for-byte from Marshal's output.
func UnmarshalBloomFilter(data []byte) (*BloomFilter, error) {
	if len(data) < 8 {
		return nil, ErrInvalidBloomFilter
	}

	size := int(binary.LittleEndian.Uint32(data[0:4]))
	numHashes := int(binary.LittleEndian.Uint32(data[4:8]))
	expectedBytes := (size + 7) / 8
	if len(data)-8 != expectedBytes {
		return nil, ErrInvalidBloomFilter
	}

	bits := make([]byte, len(data)-8)
	copy(bits, data[8:])

	return &BloomFilter{
		bits:      bits,
		size:      size,
		numHashes: numHashes,
	}, nil
}

// Stats reports fill ratio and an estimated false-positive rate, useful for
// diagnosing a filter that was sized for the wrong capacity.
func (bf *BloomFilter) Stats() map[string]interface{} {
	setBits := 0
	for _, b := range bf.bits {
		for i := 0; i < 8; i++ {
			if b&(1<<i) != 0 {
				setBits++
			}
		}
	}

	fillRatio := float64(setBits) / float64(bf.size)

	fpr := 1.0
	for i := 0; i < bf.numHashes; i++ {
		fpr *= fillRatio
	}

	return map[string]interface{}{
		"size":          bf.size,
		"num_hashes":    bf.numHashes,
		"set_bits":      setBits,
		"fill_ratio":    fillRatio,
		"estimated_fpr": fpr,
		"bytes":         len(bf.bits),
	}
}
