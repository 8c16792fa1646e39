package memtable

import "errors"

// ErrKeyTooLarge is returned by Insert when key's length overflows the
// u32 key_length field an index record encodes it into.
var ErrKeyTooLarge = errors.New("memtable: key exceeds maximum length")

// ErrValueTooLarge is returned by Insert when value's length collides
// with the on-disk tombstone sentinel: values are bounded to
// 0..2^32-2 bytes.
var ErrValueTooLarge = errors.New("memtable: value exceeds maximum length")

// MemTable is the active in-memory mutation buffer: an ordered map from
// key to an optional value, plus a byte-size accountant that the engine
// consults to decide when to seal and flush.
type MemTable struct {
	list      *skipList
	sizeBytes int64
}

// New returns an empty MemTable.
func New() *MemTable {
	return &MemTable{list: newSkipList()}
}

// Insert stores value for key. If key already held a present value, its
// contribution to the size accountant is removed first.
func (mt *MemTable) Insert(key, value []byte) error {
	if len(key) > MaxKeyLen {
		return ErrKeyTooLarge
	}
	if len(value) > MaxValueLen {
		return ErrValueTooLarge
	}

	if old, ok := mt.list.search(key); ok && !old.Deleted {
		mt.sizeBytes -= int64(len(key) + len(old.Value))
	}

	mt.list.insert(key, &Entry{Key: key, Value: value})
	mt.sizeBytes += int64(len(key) + len(value))
	return nil
}

// Remove stores a tombstone for key. The accountant is intentionally left
// unadjusted: a tombstone only transiently inflates apparent size until
// the next flush discards it.
func (mt *MemTable) Remove(key []byte) {
	mt.list.insert(key, &Entry{Key: key, Deleted: true})
}

// Get returns the three-valued lookup result for key: Missing if the key
// has never been written (or was written then flushed away), Tombstone
// if the most recent write was a Remove, Found with the value otherwise.
func (mt *MemTable) Get(key []byte) (Status, []byte) {
	entry, ok := mt.list.search(key)
	if !ok {
		return Missing, nil
	}
	if entry.Deleted {
		return Tombstone, nil
	}
	return Found, entry.Value
}

// Len returns the number of distinct keys (present or tombstoned).
func (mt *MemTable) Len() int { return mt.list.Len() }

// SizeBytes returns the current byte-size accountant.
func (mt *MemTable) SizeBytes() int64 { return mt.sizeBytes }

// Iterator returns an iterator over all entries in ascending key order.
func (mt *MemTable) Iterator() *Iterator {
	return &Iterator{current: mt.list.head}
}

// Iterator walks a MemTable's entries in ascending key order, including
// tombstones — the SSTable writer needs to see them to preserve deletion
// ordering on disk.
type Iterator struct {
	current *skipListNode
}

// Next advances the iterator and reports whether a new entry is
// available.
func (it *Iterator) Next() bool {
	if it.current == nil {
		return false
	}
	it.current = it.current.forward[0]
	return it.current != nil
}

// Entry returns the entry the iterator currently rests on.
func (it *Iterator) Entry() *Entry {
	if it.current == nil {
		return nil
	}
	return it.current.value
}
