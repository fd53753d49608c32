package skiplist

import (
	"bytes"
	"fmt"
	"sync"
	"testing"
)

// TestNewSkipList checks the basic properties of a newly created skiplist.
func TestNewSkipList(t *testing.T) {
	sl := New[int]()
	if sl.height != 1 {
		t.Errorf("Expected initial height=1, got %d", sl.height)
	}
	if sl.Len() != 0 {
		t.Errorf("Expected empty skiplist, got Len()=%d", sl.Len())
	}
	if _, ok := sl.Get([]byte("missing")); ok {
		t.Error("Expected Get on empty list to miss")
	}
}

// TestSetGetOverwrite verifies insertion, lookup and overwrite.
func TestSetGetOverwrite(t *testing.T) {
	sl := New[string]()
	sl.Set([]byte("foo"), "bar")
	sl.Set([]byte("foo"), "baz")

	v, ok := sl.Get([]byte("foo"))
	if !ok || v != "baz" {
		t.Errorf("Expected baz, got %q (found=%v)", v, ok)
	}
	if sl.Len() != 1 {
		t.Errorf("Expected Len()=1 after overwrite, got %d", sl.Len())
	}
}

// TestSetCopiesKey makes sure callers can reuse their key buffers.
func TestSetCopiesKey(t *testing.T) {
	sl := New[int]()
	key := []byte("abc")
	sl.Set(key, 1)
	key[0] = 'z'
	if _, ok := sl.Get([]byte("abc")); !ok {
		t.Error("Expected key to be copied on Set")
	}
}

// TestDelete removes keys and keeps the rest reachable.
func TestDelete(t *testing.T) {
	sl := New[int]()
	for i := 0; i < 100; i++ {
		sl.Set([]byte(fmt.Sprintf("k%03d", i)), i)
	}
	for i := 0; i < 100; i += 2 {
		if !sl.Delete([]byte(fmt.Sprintf("k%03d", i))) {
			t.Errorf("Expected delete of k%03d to succeed", i)
		}
	}
	if sl.Delete([]byte("k000")) {
		t.Error("Expected second delete to report false")
	}
	if sl.Len() != 50 {
		t.Errorf("Expected Len()=50, got %d", sl.Len())
	}
	for i := 1; i < 100; i += 2 {
		if v, ok := sl.Get([]byte(fmt.Sprintf("k%03d", i))); !ok || v != i {
			t.Errorf("Expected k%03d=%d, got %d (found=%v)", i, i, v, ok)
		}
	}
}

// TestAscendOrderAndBounds checks ordering and the half-open range.
func TestAscendOrderAndBounds(t *testing.T) {
	sl := New[int]()
	for _, k := range []string{"delta", "alpha", "charlie", "bravo", "echo"} {
		sl.Set([]byte(k), len(k))
	}

	var got []string
	sl.Ascend(nil, nil, func(k []byte, _ int) bool {
		got = append(got, string(k))
		return true
	})
	want := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	got = got[:0]
	sl.Ascend([]byte("b"), []byte("delta"), func(k []byte, _ int) bool {
		got = append(got, string(k))
		return true
	})
	want = []string{"bravo", "charlie"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Expected %v, got %v", want, got)
	}

	n := 0
	sl.Ascend(nil, nil, func([]byte, int) bool {
		n++
		return n < 2
	})
	if n != 2 {
		t.Errorf("Expected early stop after 2, got %d", n)
	}
}

// TestAscendPrefix scans one prefix, including a 0xff edge.
func TestAscendPrefix(t *testing.T) {
	sl := New[int]()
	sl.Set([]byte("state\x00CA"), 1)
	sl.Set([]byte("state\x00NY"), 2)
	sl.Set([]byte("statf"), 3)
	sl.Set([]byte{0xff, 0xff, 1}, 4)

	var n int
	sl.AscendPrefix([]byte("state\x00"), func([]byte, int) bool {
		n++
		return true
	})
	if n != 2 {
		t.Errorf("Expected 2 keys under prefix, got %d", n)
	}

	if PrefixEnd([]byte{0xff, 0xff}) != nil {
		t.Error("Expected no upper bound for an all-0xff prefix")
	}
	n = 0
	sl.AscendPrefix([]byte{0xff, 0xff}, func([]byte, int) bool {
		n++
		return true
	})
	if n != 1 {
		t.Errorf("Expected 1 key under 0xff prefix, got %d", n)
	}
}

// TestUpdate checks read-modify-write on present and absent keys.
func TestUpdate(t *testing.T) {
	sl := New[[]string]()
	add := func(s string) func([]string, bool) []string {
		return func(old []string, _ bool) []string { return append(old, s) }
	}
	sl.Update([]byte("k"), add("a"))
	sl.Update([]byte("k"), add("b"))
	v, _ := sl.Get([]byte("k"))
	if len(v) != 2 || v[0] != "a" || v[1] != "b" {
		t.Errorf("Expected [a b], got %v", v)
	}
}

// TestConcurrentAccess hammers the list from several goroutines.
func TestConcurrentAccess(t *testing.T) {
	sl := New[int]()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := []byte(fmt.Sprintf("w%d-%03d", w, i))
				sl.Set(key, i)
				sl.Get(key)
			}
		}(w)
	}
	wg.Wait()
	if sl.Len() != 1600 {
		t.Errorf("Expected 1600 keys, got %d", sl.Len())
	}

	var prev []byte
	sl.Ascend(nil, nil, func(k []byte, _ int) bool {
		if prev != nil && bytes.Compare(prev, k) >= 0 {
			t.Errorf("Keys out of order: %q then %q", prev, k)
		}
		prev = k
		return true
	})
}
