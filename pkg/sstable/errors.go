package sstable

import "errors"

var (
	// ErrEmptyMemTable is returned by Writer.Finalize when the writer
	// received no entries — a flush in that state must be a no-op, not an
	// empty SSTable.
	ErrEmptyMemTable = errors.New("sstable: refusing to build from an empty memtable")

	// ErrCorruptSSTable is returned when a data or index record is
	// truncated: a length prefix decodes to a size that cannot be
	// satisfied by the remaining file.
	ErrCorruptSSTable = errors.New("sstable: corrupt record")
)
