// Package sstable implements the immutable, on-disk sorted runs an LSM
// engine flushes memtables into and merges via compaction.
//
// On-disk layout:
//
//   data file:  concatenation of value records in index-key order.
//               live value:  [len u32 BE][bytes]
//               tombstone:   [0xFFFFFFFF u32 BE]
//   index file: concatenation of [key_len u32 BE][key][data_offset u64 BE]
//               entries in ascending key order, no trailing terminator.
//
// A third sidecar file, "<data>.bloom", holds a Bloom filter. It is not
// part of the contract above, and its absence would not change the
// answer Get returns, only how many disk reads it costs.
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/mnohosten/lsmkv/pkg/memtable"
)

const (
	tombstoneSentinel    = 0xFFFFFFFF
	sparseSampleInterval = 100 // keep every 100th index entry in memory
	bloomHashCount       = 3
)

// SSTable is an immutable, sorted, on-disk run plus the in-memory
// metadata needed to serve point lookups against it: a sparse index
// sample and the cached [minKey, maxKey] range.
type SSTable struct {
	DataPath  string
	IndexPath string
	BloomPath string

	MinKey []byte
	MaxKey []byte

	NumEntries int

	dataFile    *os.File
	indexFile   *os.File
	dataReader  *bufio.Reader
	indexReader *bufio.Reader

	sparse []sparseEntry
	bloom  *bloomFilter
}

type sparseEntry struct {
	Key         []byte
	IndexOffset int64
}

type denseEntry struct {
	Key        []byte
	DataOffset int64
}

// Writer builds a single new SSTable from entries supplied in ascending
// key order.
type Writer struct {
	dataFile  *os.File
	indexFile *os.File
	dataW     *bufio.Writer

	dataPath  string
	indexPath string
	bloomPath string

	dense  []denseEntry
	sparse []sparseEntry

	minKey []byte
	maxKey []byte

	dataOffset  int64
	indexOffset int64
	count       int

	bloom *bloomFilter
}

// NewWriter creates a new, uniquely-named SSTable under dir. The
// nanosecond-timestamp suffix is sufficient given that only one writer
// is ever active at a time.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("sstable: create directory: %w", err)
	}

	id := time.Now().UnixNano()
	dataPath := filepath.Join(dir, fmt.Sprintf("ss_table_%d.db", id))
	indexPath := dataPath + ".index"
	bloomPath := dataPath + ".bloom"

	dataFile, err := os.Create(dataPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: create data file: %w", err)
	}
	indexFile, err := os.Create(indexPath)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("sstable: create index file: %w", err)
	}

	return &Writer{
		dataFile:  dataFile,
		indexFile: indexFile,
		dataW:     bufio.NewWriter(dataFile),
		dataPath:  dataPath,
		indexPath: indexPath,
		bloomPath: bloomPath,
		bloom:     newBloomFilter(10000, bloomHashCount),
	}, nil
}

// Write appends one entry. Entries must arrive in ascending key order —
// the writer trusts its caller (memtable iteration or the compactor's
// k-way merge) to provide that.
func (w *Writer) Write(entry *memtable.Entry) error {
	key := append([]byte(nil), entry.Key...)

	if w.count == 0 {
		w.minKey = key
	}
	w.maxKey = key

	w.dense = append(w.dense, denseEntry{Key: key, DataOffset: w.dataOffset})

	n, err := writeDataRecord(w.dataW, entry.Value, entry.Deleted)
	if err != nil {
		return fmt.Errorf("sstable: write data record: %w", err)
	}
	w.dataOffset += n

	if w.count%sparseSampleInterval == 0 {
		w.sparse = append(w.sparse, sparseEntry{Key: key, IndexOffset: w.indexOffset})
	}
	w.indexOffset += int64(4 + len(key) + 8)

	// Tombstoned keys must still test positive so a later Get doesn't
	// fall through to Missing via the bloom filter short-circuit and
	// skip the layer that should have shadowed an older value.
	w.bloom.add(key)

	w.count++
	return nil
}

// Finalize streams the dense index to the index file, syncs both files,
// and returns the constructed SSTable. Finalizing a writer that received
// zero entries is refused: a flush of an empty memtable must be a no-op,
// never an empty SSTable.
func (w *Writer) Finalize() (*SSTable, error) {
	if w.count == 0 {
		w.dataFile.Close()
		w.indexFile.Close()
		os.Remove(w.dataPath)
		os.Remove(w.indexPath)
		return nil, ErrEmptyMemTable
	}

	indexW := bufio.NewWriter(w.indexFile)
	for _, e := range w.dense {
		if err := writeIndexEntry(indexW, e.Key, e.DataOffset); err != nil {
			return nil, fmt.Errorf("sstable: write index entry: %w", err)
		}
	}
	if err := indexW.Flush(); err != nil {
		return nil, fmt.Errorf("sstable: flush index file: %w", err)
	}
	if err := w.dataW.Flush(); err != nil {
		return nil, fmt.Errorf("sstable: flush data file: %w", err)
	}
	if err := w.dataFile.Sync(); err != nil {
		return nil, fmt.Errorf("sstable: sync data file: %w", err)
	}
	if err := w.indexFile.Sync(); err != nil {
		return nil, fmt.Errorf("sstable: sync index file: %w", err)
	}
	if err := os.WriteFile(w.bloomPath, w.bloom.marshal(), 0644); err != nil {
		return nil, fmt.Errorf("sstable: write bloom sidecar: %w", err)
	}

	if err := w.dataFile.Close(); err != nil {
		return nil, fmt.Errorf("sstable: close data file: %w", err)
	}
	if err := w.indexFile.Close(); err != nil {
		return nil, fmt.Errorf("sstable: close index file: %w", err)
	}

	dataFile, err := os.Open(w.dataPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: reopen data file: %w", err)
	}
	indexFile, err := os.Open(w.indexPath)
	if err != nil {
		dataFile.Close()
		return nil, fmt.Errorf("sstable: reopen index file: %w", err)
	}

	return &SSTable{
		DataPath:    w.dataPath,
		IndexPath:   w.indexPath,
		BloomPath:   w.bloomPath,
		MinKey:      w.minKey,
		MaxKey:      w.maxKey,
		NumEntries:  w.count,
		dataFile:    dataFile,
		indexFile:   indexFile,
		dataReader:  bufio.NewReader(dataFile),
		indexReader: bufio.NewReader(indexFile),
		sparse:      w.sparse,
		bloom:       w.bloom,
	}, nil
}

// Close releases a SSTable's file handles without deleting its files.
func (s *SSTable) Close() error {
	errData := s.dataFile.Close()
	errIndex := s.indexFile.Close()
	if errData != nil {
		return errData
	}
	return errIndex
}

// Remove closes and unlinks all three files backing the SSTable. Used by
// compaction once the merged output has been synced.
func (s *SSTable) Remove() error {
	s.Close()
	os.Remove(s.DataPath)
	os.Remove(s.IndexPath)
	os.Remove(s.BloomPath)
	return nil
}

// Get performs a point lookup, returning the three-valued status a
// single layer can answer: Missing, Found(value), or Tombstone.
func (s *SSTable) Get(key []byte) (memtable.Status, []byte, error) {
	if s.bloom != nil && !s.bloom.mayContain(key) {
		return memtable.Missing, nil, nil
	}
	if bytes.Compare(key, s.MinKey) < 0 || bytes.Compare(key, s.MaxKey) > 0 {
		return memtable.Missing, nil, nil
	}

	idx := sort.Search(len(s.sparse), func(i int) bool {
		return bytes.Compare(s.sparse[i].Key, key) > 0
	})
	var anchor int64
	if idx > 0 {
		anchor = s.sparse[idx-1].IndexOffset
	}

	if _, err := s.indexFile.Seek(anchor, io.SeekStart); err != nil {
		return memtable.Missing, nil, fmt.Errorf("sstable: seek index: %w", err)
	}
	s.indexReader.Reset(s.indexFile)

	for {
		storedKey, offset, err := readIndexEntry(s.indexReader)
		if err == io.EOF {
			return memtable.Missing, nil, nil
		}
		if err != nil {
			return memtable.Missing, nil, err
		}

		switch bytes.Compare(storedKey, key) {
		case 0:
			return s.readValueAt(offset)
		case 1:
			return memtable.Missing, nil, nil
		}
	}
}

func (s *SSTable) readValueAt(offset int64) (memtable.Status, []byte, error) {
	if _, err := s.dataFile.Seek(offset, io.SeekStart); err != nil {
		return memtable.Missing, nil, fmt.Errorf("sstable: seek data: %w", err)
	}
	s.dataReader.Reset(s.dataFile)

	var lenBuf [4]byte
	if _, err := io.ReadFull(s.dataReader, lenBuf[:]); err != nil {
		return memtable.Missing, nil, fmt.Errorf("%w: %v", ErrCorruptSSTable, err)
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == tombstoneSentinel {
		return memtable.Tombstone, nil, nil
	}

	value := make([]byte, length)
	if _, err := io.ReadFull(s.dataReader, value); err != nil {
		return memtable.Missing, nil, fmt.Errorf("%w: %v", ErrCorruptSSTable, err)
	}
	return memtable.Found, value, nil
}

// Iterator streams an SSTable's entries in ascending key order, including
// tombstones. Used by the compactor's k-way merge.
type Iterator struct {
	indexFile *os.File
	dataFile  *os.File
	reader    *bufio.Reader
	cur       *memtable.Entry
	err       error
}

// Iterator opens fresh, independent read handles on the SSTable's files
// so concurrent iteration never disturbs Get's seek position.
func (s *SSTable) Iterator() (*Iterator, error) {
	indexFile, err := os.Open(s.IndexPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: open index for iteration: %w", err)
	}
	dataFile, err := os.Open(s.DataPath)
	if err != nil {
		indexFile.Close()
		return nil, fmt.Errorf("sstable: open data for iteration: %w", err)
	}
	return &Iterator{
		indexFile: indexFile,
		dataFile:  dataFile,
		reader:    bufio.NewReader(indexFile),
	}, nil
}

// Next advances the iterator, returning false at end-of-stream or error.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}

	key, offset, err := readIndexEntry(it.reader)
	if err == io.EOF {
		it.cur = nil
		return false
	}
	if err != nil {
		it.err = err
		it.cur = nil
		return false
	}

	if _, err := it.dataFile.Seek(offset, io.SeekStart); err != nil {
		it.err = err
		it.cur = nil
		return false
	}
	var lenBuf [4]byte
	if _, err := io.ReadFull(it.dataFile, lenBuf[:]); err != nil {
		it.err = fmt.Errorf("%w: %v", ErrCorruptSSTable, err)
		it.cur = nil
		return false
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == tombstoneSentinel {
		it.cur = &memtable.Entry{Key: key, Deleted: true}
		return true
	}

	value := make([]byte, length)
	if _, err := io.ReadFull(it.dataFile, value); err != nil {
		it.err = fmt.Errorf("%w: %v", ErrCorruptSSTable, err)
		it.cur = nil
		return false
	}
	it.cur = &memtable.Entry{Key: key, Value: value}
	return true
}

// Entry returns the entry the iterator currently rests on.
func (it *Iterator) Entry() *memtable.Entry { return it.cur }

// Err returns the first error encountered during iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the iterator's file handles.
func (it *Iterator) Close() error {
	errIndex := it.indexFile.Close()
	errData := it.dataFile.Close()
	if errIndex != nil {
		return errIndex
	}
	return errData
}

func writeDataRecord(w io.Writer, value []byte, deleted bool) (int64, error) {
	if deleted {
		var buf [4]byte
		binary.BigEndian.PutUint32(buf[:], tombstoneSentinel)
		n, err := w.Write(buf[:])
		return int64(n), err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(value)))
	n1, err := w.Write(lenBuf[:])
	if err != nil {
		return int64(n1), err
	}
	n2, err := w.Write(value)
	return int64(n1 + n2), err
}

func writeIndexEntry(w io.Writer, key []byte, offset int64) error {
	var klenBuf [4]byte
	binary.BigEndian.PutUint32(klenBuf[:], uint32(len(key)))
	if _, err := w.Write(klenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(key); err != nil {
		return err
	}
	var offBuf [8]byte
	binary.BigEndian.PutUint64(offBuf[:], uint64(offset))
	_, err := w.Write(offBuf[:])
	return err
}

func readIndexEntry(r io.Reader) ([]byte, int64, error) {
	var klenBuf [4]byte
	if _, err := io.ReadFull(r, klenBuf[:]); err != nil {
		return nil, 0, err // io.EOF propagates as-is so callers can detect end-of-stream
	}
	klen := binary.BigEndian.Uint32(klenBuf[:])

	key := make([]byte, klen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptSSTable, err)
	}

	var offBuf [8]byte
	if _, err := io.ReadFull(r, offBuf[:]); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorruptSSTable, err)
	}
	return key, int64(binary.BigEndian.Uint64(offBuf[:])), nil
}
