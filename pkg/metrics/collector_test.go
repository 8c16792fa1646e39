package metrics

import "testing"

func TestRecordFindBranches(t *testing.T) {
	c := NewCollector()
	c.RecordFind(true, false)
	c.RecordFind(false, true)
	c.RecordFind(false, false)

	snap := c.Snapshot()
	if snap.FindsTotal != 3 {
		t.Fatalf("expected 3 finds total, got %d", snap.FindsTotal)
	}
	if snap.FindsFound != 1 {
		t.Fatalf("expected 1 found, got %d", snap.FindsFound)
	}
	if snap.FindsTombstone != 1 {
		t.Fatalf("expected 1 tombstone, got %d", snap.FindsTombstone)
	}
}

func TestCountersAccumulate(t *testing.T) {
	c := NewCollector()
	c.RecordInsert()
	c.RecordInsert()
	c.RecordRemove()
	c.RecordFlush()
	c.RecordCompaction()

	snap := c.Snapshot()
	if snap.InsertsTotal != 2 || snap.RemovesTotal != 1 || snap.FlushesTotal != 1 || snap.CompactionsTotal != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
