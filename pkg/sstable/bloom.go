package sstable

import (
	"encoding/binary"
	"hash/fnv"
)

// bloomFilter is a probabilistic membership test written alongside an
// SSTable's data and index files, in its own sidecar file, and consulted
// only as a fast negative path before the sparse index is touched. False
// positives are possible; false negatives are not, so a miss here is
// trusted and the on-disk probe is skipped, while a hit is never trusted
// on its own and always goes on to the on-disk probe.
type bloomFilter struct {
	bits      []byte
	size      int
	numHashes int
}

// newBloomFilter sizes the bit array at 10 bits per expected item
// (m = 10n) and uses numHashes probes per key; with the 3 probes SSTables
// use, that is roughly a 1.7% false-positive rate at expectedItems keys.
func newBloomFilter(expectedItems, numHashes int) *bloomFilter {
	if expectedItems < 1 {
		expectedItems = 1
	}
	size := expectedItems * 10
	byteSize := (size + 7) / 8

	return &bloomFilter{
		bits:      make([]byte, byteSize),
		size:      size,
		numHashes: numHashes,
	}
}

func (bf *bloomFilter) add(key []byte) {
	for i := 0; i < bf.numHashes; i++ {
		bit := bf.hash(key, i) % uint64(bf.size)
		bf.bits[bit/8] |= 1 << (bit % 8)
	}
}

func (bf *bloomFilter) mayContain(key []byte) bool {
	for i := 0; i < bf.numHashes; i++ {
		bit := bf.hash(key, i) % uint64(bf.size)
		if bf.bits[bit/8]&(1<<(bit%8)) == 0 {
			return false
		}
	}
	return true
}

// hash derives the i-th probe as h1 + i*h2, where h1 is the fnv-1a digest
// of key and h2 the fnv-1a digest of key followed by the byte i, avoiding
// numHashes independent hash functions.
func (bf *bloomFilter) hash(key []byte, i int) uint64 {
	h := fnv.New64a()
	h.Write(key)
	h1 := h.Sum64()

	h.Reset()
	h.Write(key)
	h.Write([]byte{byte(i)})
	h2 := h.Sum64()

	return h1 + uint64(i)*h2
}

// marshal serializes the filter as [size u32][numHashes u32][bits...] for
// the ".bloom" sidecar file. Nothing currently reads a sidecar back: an
// SSTable is only ever consulted within the process that just wrote it,
// and restart recovery is unimplemented, so there is no decoder to pair
// this with yet.
func (bf *bloomFilter) marshal() []byte {
	buf := make([]byte, 8+len(bf.bits))
	binary.BigEndian.PutUint32(buf[0:4], uint32(bf.size))
	binary.BigEndian.PutUint32(buf[4:8], uint32(bf.numHashes))
	copy(buf[8:], bf.bits)
	return buf
}
