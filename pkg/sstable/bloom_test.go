package sstable

import (
	"encoding/binary"
	"testing"
)

func TestBloomFilterAddMayContain(t *testing.T) {
	bf := newBloomFilter(100, bloomHashCount)
	bf.add([]byte("present"))

	if !bf.mayContain([]byte("present")) {
		t.Fatal("expected mayContain to report true for an added key")
	}
}

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	bf := newBloomFilter(1000, bloomHashCount)
	keys := make([][]byte, 500)
	for i := range keys {
		keys[i] = []byte{byte(i >> 8), byte(i), byte('k')}
		bf.add(keys[i])
	}
	for _, k := range keys {
		if !bf.mayContain(k) {
			t.Fatalf("false negative for key %x", k)
		}
	}
}

func TestBloomFilterMarshalLayout(t *testing.T) {
	bf := newBloomFilter(50, bloomHashCount)
	bf.add([]byte("a"))
	bf.add([]byte("b"))

	buf := bf.marshal()
	if len(buf) != 8+len(bf.bits) {
		t.Fatalf("expected marshaled length %d, got %d", 8+len(bf.bits), len(buf))
	}
	if got := binary.BigEndian.Uint32(buf[0:4]); got != uint32(bf.size) {
		t.Fatalf("size field: got %d want %d", got, bf.size)
	}
	if got := binary.BigEndian.Uint32(buf[4:8]); got != uint32(bf.numHashes) {
		t.Fatalf("numHashes field: got %d want %d", got, bf.numHashes)
	}
	for i, b := range bf.bits {
		if buf[8+i] != b {
			t.Fatalf("bit byte %d: got %x want %x", i, buf[8+i], b)
		}
	}
}
