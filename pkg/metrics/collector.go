// Package metrics exposes engine-level counters in Prometheus text
// format, scoped down to the handful of signals an embedded,
// single-process storage engine actually has: no server to bind to, no
// registry, no connection or cache metrics.
package metrics

import "sync/atomic"

// Collector accumulates counters the engine updates as it runs.
// Counters are atomic so a caller embedding the engine in a larger
// concurrent program can still read Collector safely, even though the
// engine itself only ever mutates from one goroutine at a time.
type Collector struct {
	insertsTotal     uint64
	removesTotal     uint64
	findsTotal       uint64
	findsFound       uint64
	findsTombstone   uint64
	flushesTotal     uint64
	compactionsTotal uint64
}

// NewCollector returns a zeroed Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) RecordInsert()     { atomic.AddUint64(&c.insertsTotal, 1) }
func (c *Collector) RecordRemove()     { atomic.AddUint64(&c.removesTotal, 1) }
func (c *Collector) RecordFlush()      { atomic.AddUint64(&c.flushesTotal, 1) }
func (c *Collector) RecordCompaction() { atomic.AddUint64(&c.compactionsTotal, 1) }

// RecordFind increments the find counter and, depending on outcome, the
// found/tombstone sub-counters — a miss increments neither.
func (c *Collector) RecordFind(found, tombstone bool) {
	atomic.AddUint64(&c.findsTotal, 1)
	if found {
		atomic.AddUint64(&c.findsFound, 1)
	} else if tombstone {
		atomic.AddUint64(&c.findsTombstone, 1)
	}
}

// Snapshot is a consistent, read-only copy of the collector's counters.
type Snapshot struct {
	InsertsTotal     uint64
	RemovesTotal     uint64
	FindsTotal       uint64
	FindsFound       uint64
	FindsTombstone   uint64
	FlushesTotal     uint64
	CompactionsTotal uint64
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		InsertsTotal:     atomic.LoadUint64(&c.insertsTotal),
		RemovesTotal:     atomic.LoadUint64(&c.removesTotal),
		FindsTotal:       atomic.LoadUint64(&c.findsTotal),
		FindsFound:       atomic.LoadUint64(&c.findsFound),
		FindsTombstone:   atomic.LoadUint64(&c.findsTombstone),
		FlushesTotal:     atomic.LoadUint64(&c.flushesTotal),
		CompactionsTotal: atomic.LoadUint64(&c.compactionsTotal),
	}
}
