package skiplist

import (
	"bytes"
	"math/rand"
	"sync"
	"time"
)

const maxLevel = 32 // Maximum number of levels in the skiplist
const p = 0.25      // Probability for level increase

// Node is an element of the skiplist.
type Node[V any] struct {
	key   []byte
	value V
	next  []*Node[V]
}

// Key returns the node's key. Callers must not modify it.
func (n *Node[V]) Key() []byte { return n.key }

// Value returns the node's value.
func (n *Node[V]) Value() V { return n.value }

// SkipList is an ordered map from byte keys to values of type V.
type SkipList[V any] struct {
	mutex  sync.RWMutex
	head   *Node[V]
	height int
	length int
	rnd    *rand.Rand
}

// New creates and initializes a new skiplist.
func New[V any]() *SkipList[V] {
	return &SkipList[V]{
		head: &Node[V]{
			next: make([]*Node[V], maxLevel),
		},
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		height: 1,
	}
}

// randomLevel generates a random level for a new node.
// Called with the write lock held.
func (sl *SkipList[V]) randomLevel() int {
	level := 1
	for ; level < maxLevel && sl.rnd.Float64() < p; level++ {
	}
	return level
}

// findPrev fills update with the rightmost node before key on every level
// and returns the level-0 predecessor.
func (sl *SkipList[V]) findPrev(key []byte, update []*Node[V]) *Node[V] {
	current := sl.head
	for i := sl.height - 1; i >= 0; i-- {
		for current.next[i] != nil && bytes.Compare(current.next[i].key, key) < 0 {
			current = current.next[i]
		}
		if update != nil {
			update[i] = current
		}
	}
	return current
}

// Set inserts or updates a key-value pair. The key is copied.
func (sl *SkipList[V]) Set(key []byte, value V) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	update := make([]*Node[V], maxLevel)
	current := sl.findPrev(key, update)

	// Check if the key exists
	if current.next[0] != nil && bytes.Equal(current.next[0].key, key) {
		current.next[0].value = value
		return
	}

	level := sl.randomLevel()
	if level > sl.height {
		for i := sl.height; i < level; i++ {
			update[i] = sl.head
		}
		sl.height = level
	}

	node := &Node[V]{
		key:   append([]byte{}, key...),
		value: value,
		next:  make([]*Node[V], level),
	}
	for i := 0; i < level; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
	}
	sl.length++
}

// Update atomically replaces the value of key with fn(old, found).
func (sl *SkipList[V]) Update(key []byte, fn func(old V, found bool) V) {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	update := make([]*Node[V], maxLevel)
	current := sl.findPrev(key, update)
	if n := current.next[0]; n != nil && bytes.Equal(n.key, key) {
		n.value = fn(n.value, true)
		return
	}

	var zero V
	value := fn(zero, false)
	level := sl.randomLevel()
	if level > sl.height {
		for i := sl.height; i < level; i++ {
			update[i] = sl.head
		}
		sl.height = level
	}
	node := &Node[V]{key: append([]byte{}, key...), value: value, next: make([]*Node[V], level)}
	for i := 0; i < level; i++ {
		node.next[i] = update[i].next[i]
		update[i].next[i] = node
	}
	sl.length++
}

// Get retrieves the value for a given key.
func (sl *SkipList[V]) Get(key []byte) (V, bool) {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()

	current := sl.findPrev(key, nil).next[0]
	if current != nil && bytes.Equal(current.key, key) {
		return current.value, true
	}
	var zero V
	return zero, false
}

// Delete removes a key-value pair from the skiplist.
func (sl *SkipList[V]) Delete(key []byte) bool {
	sl.mutex.Lock()
	defer sl.mutex.Unlock()

	update := make([]*Node[V], maxLevel)
	current := sl.findPrev(key, update).next[0]
	if current == nil || !bytes.Equal(current.key, key) {
		return false
	}

	for i := 0; i < sl.height; i++ {
		if update[i].next[i] != current {
			break
		}
		update[i].next[i] = current.next[i]
	}
	for sl.height > 1 && sl.head.next[sl.height-1] == nil {
		sl.height--
	}
	sl.length--
	return true
}

// Len returns the number of elements in the skiplist.
func (sl *SkipList[V]) Len() int {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()
	return sl.length
}

// Ascend calls fn for every key in [from, to) in order, stopping early when fn
// returns false. A nil from starts at the first key, a nil to runs to the end.
// fn runs under the read lock and must not write to the list.
func (sl *SkipList[V]) Ascend(from, to []byte, fn func(key []byte, value V) bool) {
	sl.mutex.RLock()
	defer sl.mutex.RUnlock()

	var n *Node[V]
	if from == nil {
		n = sl.head.next[0]
	} else {
		n = sl.findPrev(from, nil).next[0]
	}
	for ; n != nil; n = n.next[0] {
		if to != nil && bytes.Compare(n.key, to) >= 0 {
			return
		}
		if !fn(n.key, n.value) {
			return
		}
	}
}

// AscendPrefix calls fn for every key starting with prefix.
func (sl *SkipList[V]) AscendPrefix(prefix []byte, fn func(key []byte, value V) bool) {
	sl.Ascend(prefix, PrefixEnd(prefix), fn)
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil when there is none.
func PrefixEnd(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
