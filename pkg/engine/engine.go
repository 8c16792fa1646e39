// Package engine presents the public contract of the storage engine:
// insert, remove, find, flush, purge. It owns the active and immutable
// memtables and the L0/L1/L2 level vectors, and drives the flush and
// compaction pipeline synchronously on the caller's goroutine.
//
// Every public call is synchronous and cooperative: no sync.RWMutex, no
// background flush/compaction workers, no channels — flush and
// compaction run to completion on the caller's own goroutine before the
// call returns.
package engine

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mnohosten/lsmkv/pkg/compaction"
	"github.com/mnohosten/lsmkv/pkg/memtable"
	"github.com/mnohosten/lsmkv/pkg/metrics"
	"github.com/mnohosten/lsmkv/pkg/sstable"
)

const (
	// DefaultMemtableSizeBytes is the size at which the active memtable
	// is sealed and flushed.
	DefaultMemtableSizeBytes = 64 * 1024 * 1024

	// DefaultLevelCompactionThreshold is the SSTable count above which a
	// level is merged entirely into the level below it.
	DefaultLevelCompactionThreshold = 10

	numLevels = 3
)

// Config configures a new Engine. Plain struct, no env/flag parsing.
type Config struct {
	Dir                      string
	MemtableSizeBytes        int64
	LevelCompactionThreshold int
}

// DefaultConfig returns sane defaults rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:                      dir,
		MemtableSizeBytes:        DefaultMemtableSizeBytes,
		LevelCompactionThreshold: DefaultLevelCompactionThreshold,
	}
}

// Engine is the top-level storage engine: insert, remove, find, flush,
// purge, layered over an active/immutable memtable pair and three
// on-disk levels.
type Engine struct {
	config Config

	sstableDir string

	active    *memtable.MemTable
	immutable *memtable.MemTable

	// levels[0] is L0 (newest first, overlapping ranges allowed).
	// levels[1] and levels[2] are L1/L2, also newest first: each
	// compaction prepends one merged table, so tables within a level may
	// overlap.
	levels [numLevels][]*sstable.SSTable

	seq          uint64
	logicalCount int64

	Metrics *metrics.Collector
}

// New creates an engine rooted at config.Dir. Restart recovery — walking
// an existing directory to rebuild the level vectors — is not
// implemented; New always starts from an empty set of levels, even if
// config.Dir already holds SSTables from a prior run.
func New(config Config) (*Engine, error) {
	if config.MemtableSizeBytes <= 0 {
		config.MemtableSizeBytes = DefaultMemtableSizeBytes
	}
	if config.LevelCompactionThreshold <= 0 {
		config.LevelCompactionThreshold = DefaultLevelCompactionThreshold
	}

	sstableDir := filepath.Join(config.Dir, "ss_tables")
	if err := os.MkdirAll(sstableDir, 0755); err != nil {
		return nil, fmt.Errorf("engine: create sstable directory: %w", err)
	}
	// wals/ is reserved but unused: nothing below calls into pkg/wal yet.
	if err := os.MkdirAll(filepath.Join(config.Dir, "wals"), 0755); err != nil {
		return nil, fmt.Errorf("engine: create wal directory: %w", err)
	}

	return &Engine{
		config:     config,
		sstableDir: sstableDir,
		active:     memtable.New(),
		Metrics:    metrics.NewCollector(),
	}, nil
}

// Insert stores value under key, sealing and flushing the active
// memtable first if it has reached the configured size threshold.
func (e *Engine) Insert(key, value []byte) error {
	if err := e.active.Insert(key, value); err != nil {
		return err
	}
	e.seq++
	e.logicalCount++
	e.Metrics.RecordInsert()

	if e.active.SizeBytes() >= e.config.MemtableSizeBytes {
		return e.Flush()
	}
	return nil
}

// Remove marks key as deleted. logicalCount is clamped at zero rather
// than allowed to go negative for a delete of a never-seen key.
func (e *Engine) Remove(key []byte) error {
	e.active.Remove(key)
	e.seq++
	if e.logicalCount > 0 {
		e.logicalCount--
	}
	e.Metrics.RecordRemove()
	return nil
}

// Find looks up key across every live layer in order of decreasing
// recency: active memtable, immutable memtable, L0 (newest first), L1,
// L2. The first layer to answer Found or Tombstone is authoritative —
// collapsing that three-valued result to a plain miss would let a
// tombstone in a newer layer fail to shadow a present value underneath
// it.
func (e *Engine) Find(key []byte) ([]byte, bool, error) {
	value, found, tombstone, err := e.find(key)
	if err == nil {
		e.Metrics.RecordFind(found, tombstone)
	}
	return value, found, err
}

func (e *Engine) find(key []byte) (value []byte, found, tombstone bool, err error) {
	if status, value := e.active.Get(key); status != memtable.Missing {
		v, ok := resolveMemtableStatus(status, value)
		return v, ok, status == memtable.Tombstone, nil
	}
	if e.immutable != nil {
		if status, value := e.immutable.Get(key); status != memtable.Missing {
			v, ok := resolveMemtableStatus(status, value)
			return v, ok, status == memtable.Tombstone, nil
		}
	}

	for _, level := range e.levels {
		for _, table := range level {
			if bytes.Compare(key, table.MinKey) < 0 || bytes.Compare(key, table.MaxKey) > 0 {
				continue
			}
			status, value, getErr := table.Get(key)
			if getErr != nil {
				return nil, false, false, fmt.Errorf("engine: find: %w", getErr)
			}
			switch status {
			case memtable.Found:
				return value, true, false, nil
			case memtable.Tombstone:
				return nil, false, true, nil
			}
		}
	}
	return nil, false, false, nil
}

func resolveMemtableStatus(status memtable.Status, value []byte) ([]byte, bool) {
	if status == memtable.Found {
		return value, true
	}
	return nil, false // Tombstone
}

// Flush seals the active memtable and writes it as a new L0 SSTable. A
// flush of an empty memtable is a no-op. After a successful flush, L0 is
// compacted into L1 if it now holds more than the configured threshold,
// and L1 into L2 in turn.
func (e *Engine) Flush() error {
	if e.active.Len() == 0 {
		return nil
	}

	sealed := e.active
	e.immutable = sealed
	e.active = memtable.New()

	w, err := sstable.NewWriter(e.sstableDir)
	if err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}
	it := sealed.Iterator()
	for it.Next() {
		if err := w.Write(it.Entry()); err != nil {
			return fmt.Errorf("engine: flush: %w", err)
		}
	}
	table, err := w.Finalize()
	if err != nil {
		return fmt.Errorf("engine: flush: %w", err)
	}

	e.levels[0] = append([]*sstable.SSTable{table}, e.levels[0]...)
	e.immutable = nil
	e.Metrics.RecordFlush()

	if len(e.levels[0]) > e.config.LevelCompactionThreshold {
		if err := e.compactLevel(0); err != nil {
			return err
		}
	}
	if len(e.levels[1]) > e.config.LevelCompactionThreshold {
		if err := e.compactLevel(1); err != nil {
			return err
		}
	}
	return nil
}

// compactLevel merges every SSTable at level into a single SSTable at
// level+1. Tombstones are dropped only when level+1 is the bottom level
// (L2) and holds no older table yet: an intermediate level, or an L2 that
// already has tables, must keep them to keep shadowing older data.
//
// Every level is newest-first: L0 because Flush prepends (so does this
// function for L1/L2), and Find and compaction.Run's rank tie-break both
// depend on that ordering to let a newer entry win over an older one
// sharing the same key. A plain append here would leave level+1
// oldest-first after a second compaction round touching it, letting a
// stale value — or a stale value outliving a newer tombstone — win a
// lookup.
func (e *Engine) compactLevel(level int) error {
	inputs := e.levels[level]
	if len(inputs) == 0 {
		return nil
	}
	dropTombstones := level+1 == numLevels-1 && len(e.levels[level+1]) == 0

	merged, err := compaction.Run(inputs, e.sstableDir, dropTombstones)
	if err != nil {
		return fmt.Errorf("engine: compact L%d: %w", level, err)
	}

	// Inputs are only retired once the merged output has synced
	// successfully.
	for _, table := range inputs {
		table.Remove()
	}
	e.levels[level] = nil
	e.Metrics.RecordCompaction()

	if merged != nil {
		e.levels[level+1] = append([]*sstable.SSTable{merged}, e.levels[level+1]...)
	}
	return nil
}

// Purge removes the entire directory root, recreates its empty
// ss_tables/ and wals/ directories, and resets the memtables and level
// vectors. The sequence number, the logical count and the Metrics
// counters are not reset.
func (e *Engine) Purge() error {
	for _, level := range e.levels {
		for _, table := range level {
			table.Close()
		}
	}
	for i := range e.levels {
		e.levels[i] = nil
	}
	e.active = memtable.New()
	e.immutable = nil

	if err := os.RemoveAll(e.config.Dir); err != nil {
		return fmt.Errorf("engine: purge: %w", err)
	}
	if err := os.MkdirAll(e.sstableDir, 0755); err != nil {
		return fmt.Errorf("engine: purge: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(e.config.Dir, "wals"), 0755); err != nil {
		return fmt.Errorf("engine: purge: %w", err)
	}
	return nil
}

// StartTxn and CommitTxn are no-ops beyond the flush CommitTxn forces;
// transaction coordination lives above this engine, not inside it.
func (e *Engine) StartTxn() error { return nil }

// CommitTxn forces a flush, giving the caller a synced checkpoint, but
// performs no transaction bookkeeping of its own.
func (e *Engine) CommitTxn() error { return e.Flush() }

// Stats reports a read-only snapshot of engine-level counters, used by
// pkg/metrics.
type Stats struct {
	ActiveMemtableSizeBytes int64
	ActiveMemtableLen       int
	LogicalCount            int64
	Sequence                uint64
	L0Count                 int
	L1Count                 int
	L2Count                 int
}

// Stats returns a snapshot of the engine's current counters.
func (e *Engine) Stats() Stats {
	return Stats{
		ActiveMemtableSizeBytes: e.active.SizeBytes(),
		ActiveMemtableLen:       e.active.Len(),
		LogicalCount:            e.logicalCount,
		Sequence:                e.seq,
		L0Count:                 len(e.levels[0]),
		L1Count:                 len(e.levels[1]),
		L2Count:                 len(e.levels[2]),
	}
}

// WriteMetrics renders the engine's counters and current gauges in
// Prometheus text exposition format.
func (e *Engine) WriteMetrics(w io.Writer) error {
	stats := e.Stats()
	exporter := metrics.NewPrometheusExporter(e.Metrics)
	return exporter.WriteMetrics(w, metrics.EngineGauges{
		ActiveMemtableSizeBytes: stats.ActiveMemtableSizeBytes,
		ActiveMemtableLen:       stats.ActiveMemtableLen,
		LogicalCount:            stats.LogicalCount,
		L0Count:                 stats.L0Count,
		L1Count:                 stats.L1Count,
		L2Count:                 stats.L2Count,
	})
}
