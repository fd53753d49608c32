package segment

import (
	"bytes"

	"github.com/flynnfc/bagginsindex/internal/skiplist"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
)

// entry is the newest version of one document. Deleted entries shadow older
// versions in flushed segments.
type entry struct {
	doc     fields.Document
	deleted bool
}

// memtable is the in-memory part of an index: documents by primary key and
// a term dictionary from term key to the set of primary keys.
type memtable struct {
	docs  *skiplist.SkipList[entry]
	terms *skiplist.SkipList[map[string]struct{}]
}

func newMemtable() *memtable {
	return &memtable{
		docs:  skiplist.New[entry](),
		terms: skiplist.New[map[string]struct{}](),
	}
}

// Len counts documents, tombstones included.
func (m *memtable) Len() int {
	return m.docs.Len()
}

func (m *memtable) upsert(pk []byte, d fields.Document) error {
	terms, err := documentTerms(d)
	if err != nil {
		return err
	}
	if old, ok := m.docs.Get(pk); ok && !old.deleted {
		m.unindex(pk, old.doc)
	}
	m.docs.Set(pk, entry{doc: d})
	for _, t := range terms {
		m.terms.Update(t, func(set map[string]struct{}, _ bool) map[string]struct{} {
			if set == nil {
				set = make(map[string]struct{}, 1)
			}
			set[string(pk)] = struct{}{}
			return set
		})
	}
	return nil
}

func (m *memtable) delete(pk []byte) {
	if old, ok := m.docs.Get(pk); ok && !old.deleted {
		m.unindex(pk, old.doc)
	}
	m.docs.Set(pk, entry{deleted: true})
}

func (m *memtable) unindex(pk []byte, d fields.Document) {
	terms, err := documentTerms(d)
	if err != nil {
		return
	}
	for _, t := range terms {
		empty := false
		m.terms.Update(t, func(set map[string]struct{}, _ bool) map[string]struct{} {
			delete(set, string(pk))
			empty = len(set) == 0
			return set
		})
		if empty {
			m.terms.Delete(t)
		}
	}
}

func (m *memtable) get(pk []byte) (entry, bool) {
	return m.docs.Get(pk)
}

// postings calls fn for every primary key under a term key in [lower, upper].
func (m *memtable) postings(lower, upper []byte, fn func(pk []byte)) {
	m.terms.Ascend(lower, nil, func(key []byte, set map[string]struct{}) bool {
		if bytes.Compare(key, upper) > 0 {
			return false
		}
		for pk := range set {
			fn([]byte(pk))
		}
		return true
	})
}

// ascend calls fn for every entry in primary key order.
func (m *memtable) ascend(fn func(pk []byte, e entry) bool) {
	m.docs.Ascend(nil, nil, fn)
}
