package memtable

import "testing"

func TestSkipListInsertSearch(t *testing.T) {
	sl := newSkipList()
	sl.insert([]byte("b"), &Entry{Key: []byte("b"), Value: []byte("2")})
	sl.insert([]byte("a"), &Entry{Key: []byte("a"), Value: []byte("1")})

	v, ok := sl.search([]byte("a"))
	if !ok || string(v.Value) != "1" {
		t.Fatalf("search a: ok=%v value=%v", ok, v)
	}
	if _, ok := sl.search([]byte("z")); ok {
		t.Fatal("search z: expected miss")
	}
}

func TestSkipListOverwriteDoesNotGrowSize(t *testing.T) {
	sl := newSkipList()
	sl.insert([]byte("a"), &Entry{Key: []byte("a"), Value: []byte("1")})
	sl.insert([]byte("a"), &Entry{Key: []byte("a"), Value: []byte("2")})

	if sl.Len() != 1 {
		t.Fatalf("expected 1 entry after overwrite, got %d", sl.Len())
	}
}

func TestSkipListManyKeysStayOrdered(t *testing.T) {
	sl := newSkipList()
	for i := 0; i < 1000; i++ {
		k := []byte{byte(i >> 8), byte(i)}
		sl.insert(k, &Entry{Key: k, Value: k})
	}

	var prev *skipListNode
	n := sl.head.forward[0]
	count := 0
	for n != nil {
		if prev != nil && string(prev.key) >= string(n.key) {
			t.Fatalf("out of order: %x >= %x", prev.key, n.key)
		}
		prev = n
		n = n.forward[0]
		count++
	}
	if count != 1000 {
		t.Fatalf("expected 1000 nodes, walked %d", count)
	}
}
