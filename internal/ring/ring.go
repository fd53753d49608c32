package ring

import (
	"hash/crc32"
	"sort"
	"strconv"
	"sync"
)

type Hash func(data []byte) uint32

// HashRing assigns row keys to shards with consistent hashing, so adding a
// shard only moves the keys that land on its virtual nodes.
type HashRing struct {
	hash     Hash     // The hash function to use.
	replicas int      // Number of virtual nodes per shard.
	keys     []uint32 // Sorted hash ring.
	hashMap  map[uint32]string
	shards   map[string]struct{}
	sync.RWMutex
}

func NewHashRing(replicas int, fn Hash) *HashRing {
	if replicas < 1 {
		replicas = 1
	}
	m := &HashRing{
		replicas: replicas,
		hashMap:  make(map[uint32]string),
		shards:   make(map[string]struct{}),
	}
	if fn != nil {
		m.hash = fn
	} else {
		m.hash = crc32.ChecksumIEEE
	}
	return m
}

// Add places shards on the ring. Adding a shard twice is a no-op.
func (m *HashRing) Add(shards ...string) {
	m.Lock()
	defer m.Unlock()

	for _, shard := range shards {
		if _, ok := m.shards[shard]; ok {
			continue
		}
		m.shards[shard] = struct{}{}
		for i := 0; i < m.replicas; i++ {
			hashKey := m.hash([]byte(strconv.Itoa(i) + shard))
			m.keys = append(m.keys, hashKey)
			m.hashMap[hashKey] = shard
		}
	}
	sort.Slice(m.keys, func(i, j int) bool { return m.keys[i] < m.keys[j] })
}

// Get returns the shard owning key, or "" on an empty ring.
func (m *HashRing) Get(key []byte) string {
	m.RLock()
	defer m.RUnlock()

	if len(m.keys) == 0 {
		return ""
	}
	hashKey := m.hash(key)
	idx := sort.Search(len(m.keys), func(i int) bool {
		return m.keys[i] >= hashKey
	})
	// wrap around
	if idx == len(m.keys) {
		idx = 0
	}
	return m.hashMap[m.keys[idx]]
}

// Shards returns every shard name in sorted order.
func (m *HashRing) Shards() []string {
	m.RLock()
	defer m.RUnlock()
	out := make([]string, 0, len(m.shards))
	for s := range m.shards {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
