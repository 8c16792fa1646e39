// Package compaction merges overlapping SSTables into a single disjoint
// run via a container/heap k-way merge of their index streams, with an
// explicit recency rank for tie-breaking: a bare insertion-order
// tie-break is only correct by accident, when tables happen to arrive in
// the right order.
package compaction

import (
	"bytes"
	"container/heap"
	"fmt"

	"github.com/mnohosten/lsmkv/pkg/memtable"
	"github.com/mnohosten/lsmkv/pkg/sstable"
)

// Run merges inputs into a single new SSTable under dir. inputs must be
// ordered newest-first: when two input tables hold the same key, the one
// earlier in inputs wins. dropTombstones elects bottom-level behavior —
// true only for the deepest level a key can reach, since an intermediate
// level must preserve tombstones to keep shadowing older data below it.
//
// Run never retires its inputs: the caller removes them only after Run
// returns a synced output, so a failed compaction leaves the input level
// intact.
func Run(inputs []*sstable.SSTable, dir string, dropTombstones bool) (*sstable.SSTable, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	streams := make([]*rankedIter, 0, len(inputs))
	defer func() {
		for _, s := range streams {
			s.it.Close()
		}
	}()

	for rank, table := range inputs {
		it, err := table.Iterator()
		if err != nil {
			return nil, fmt.Errorf("compaction: open iterator: %w", err)
		}
		streams = append(streams, &rankedIter{it: it, rank: rank})
	}

	h := &mergeHeap{}
	for _, s := range streams {
		if s.it.Next() {
			heap.Push(h, s)
		} else if err := s.it.Err(); err != nil {
			return nil, fmt.Errorf("compaction: read input: %w", err)
		}
	}

	w, err := sstable.NewWriter(dir)
	if err != nil {
		return nil, fmt.Errorf("compaction: create output: %w", err)
	}

	var (
		curKey []byte
		best   *memtable.Entry
		have   bool
	)
	flushBest := func() error {
		if !have {
			return nil
		}
		if best.Deleted && dropTombstones {
			have = false
			curKey = nil
			return nil
		}
		if err := w.Write(best); err != nil {
			return err
		}
		have = false
		curKey = nil
		return nil
	}

	for h.Len() > 0 {
		s := heap.Pop(h).(*rankedIter)
		entry := s.it.Entry()

		// The heap orders by key then by rank, so the first pop for a new
		// key is always the entry from the newest input that holds it;
		// any further pop sharing that key is older and simply discarded.
		if !have || !bytes.Equal(entry.Key, curKey) {
			if err := flushBest(); err != nil {
				return nil, fmt.Errorf("compaction: write merged entry: %w", err)
			}
			curKey = append([]byte(nil), entry.Key...)
			best = entry
			have = true
		}

		if s.it.Next() {
			heap.Push(h, s)
		} else if err := s.it.Err(); err != nil {
			return nil, fmt.Errorf("compaction: read input: %w", err)
		}
	}
	if err := flushBest(); err != nil {
		return nil, fmt.Errorf("compaction: write merged entry: %w", err)
	}

	output, err := w.Finalize()
	if err == sstable.ErrEmptyMemTable {
		// Every input entry was a tombstone dropped at the bottom level:
		// a legitimate empty merge, not an error.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compaction: finalize output: %w", err)
	}
	return output, nil
}

// rankedIter pairs a streaming SSTable iterator with the recency rank of
// its source table (lower rank is newer).
type rankedIter struct {
	it   *sstable.Iterator
	rank int
}

// mergeHeap orders rankedIters by current key, then by rank so the
// newest of several equal-keyed entries surfaces first.
type mergeHeap []*rankedIter

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	cmp := bytes.Compare(h[i].it.Entry().Key, h[j].it.Entry().Key)
	if cmp != 0 {
		return cmp < 0
	}
	return h[i].rank < h[j].rank
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) {
	*h = append(*h, x.(*rankedIter))
}

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

