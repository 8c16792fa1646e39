package wal

import "testing"

func TestAppendAssignsIncreasingLSNs(t *testing.T) {
	l, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer l.Close()

	lsn1, err := l.Append(OpInsert, []byte("a"), []byte("1"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	lsn2, err := l.Append(OpInsert, []byte("b"), []byte("2"))
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if lsn2 <= lsn1 {
		t.Fatalf("expected increasing LSNs, got %d then %d", lsn1, lsn2)
	}
}

func TestReadAllRoundTripsEntries(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := l.Append(OpInsert, []byte("a"), []byte("1")); err != nil {
		t.Fatalf("Append insert: %v", err)
	}
	if _, err := l.Append(OpDelete, []byte("b"), nil); err != nil {
		t.Fatalf("Append delete: %v", err)
	}
	if _, err := l.Append(OpStartTxn, nil, nil); err != nil {
		t.Fatalf("Append start txn: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	entries, err := l2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	if entries[0].Operation != OpInsert || string(entries[0].Key) != "a" || string(entries[0].Value) != "1" {
		t.Fatalf("entry 0 mismatch: %+v", entries[0])
	}
	if entries[1].Operation != OpDelete || string(entries[1].Key) != "b" || entries[1].Value != nil {
		t.Fatalf("entry 1 mismatch: %+v", entries[1])
	}
	if entries[2].Operation != OpStartTxn {
		t.Fatalf("entry 2 mismatch: %+v", entries[2])
	}
}

func TestEmptyValueRoundTripsAsNonNil(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := l.Append(OpInsert, []byte("k"), []byte("")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	l2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l2.Close()

	entries, err := l2.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(entries) != 1 || entries[0].Value == nil || len(entries[0].Value) != 0 {
		t.Fatalf("expected one entry with a non-nil empty value, got %+v", entries)
	}
}
