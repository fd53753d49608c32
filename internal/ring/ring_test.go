package ring

import (
	"fmt"
	"testing"
)

// TestEmptyRing returns no shard.
func TestEmptyRing(t *testing.T) {
	r := NewHashRing(3, nil)
	if got := r.Get([]byte("k")); got != "" {
		t.Errorf("Expected empty shard, got %q", got)
	}
}

// TestStableAssignment checks a key always maps to the same shard.
func TestStableAssignment(t *testing.T) {
	r := NewHashRing(16, nil)
	r.Add("shard-0", "shard-1", "shard-2")

	for i := 0; i < 100; i++ {
		key := []byte(fmt.Sprintf("row-%d", i))
		if a, b := r.Get(key), r.Get(key); a != b || a == "" {
			t.Errorf("Expected stable non-empty shard for %s, got %q then %q", key, a, b)
		}
	}
	if got := fmt.Sprint(r.Shards()); got != "[shard-0 shard-1 shard-2]" {
		t.Errorf("Unexpected shards %s", got)
	}
}

// TestAllShardsUsed makes sure virtual nodes spread the keys.
func TestAllShardsUsed(t *testing.T) {
	r := NewHashRing(32, nil)
	r.Add("a", "b", "c", "a")

	seen := map[string]int{}
	for i := 0; i < 3000; i++ {
		seen[r.Get([]byte(fmt.Sprintf("key-%d", i)))]++
	}
	if len(seen) != 3 {
		t.Errorf("Expected all 3 shards to own keys, got %v", seen)
	}
}

// TestCustomHash wraps around past the last virtual node.
func TestCustomHash(t *testing.T) {
	r := NewHashRing(1, func(b []byte) uint32 {
		if string(b) == "0only" {
			return 10
		}
		return 20
	})
	r.Add("only")
	if got := r.Get([]byte("anything")); got != "only" {
		t.Errorf("Expected wrap-around to %q, got %q", "only", got)
	}
}
