package segment

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/numeric"
)

// Query selects documents. Candidates are gathered from the term dictionary
// and then re-checked with Matches against the live version of each document.
type Query interface {
	// ranges calls fn with the inclusive term key bounds the query reads.
	ranges(fn func(lower, upper []byte)) error
	// Matches reports whether d satisfies the query.
	Matches(d fields.Document) bool
	String() string
}

type termQuery struct {
	field string
	tag   byte
	term  []byte
}

// Term matches documents whose field indexed the exact text term.
func Term(field, text string) Query {
	return termQuery{field: field, tag: tagText, term: []byte(text)}
}

// BinaryTerm matches documents whose binary field equals b.
func BinaryTerm(field string, b []byte) Query {
	return termQuery{field: field, tag: tagBinary, term: append([]byte{}, b...)}
}

func (q termQuery) ranges(fn func(lower, upper []byte)) error {
	k := termKey(q.field, q.tag, q.term)
	fn(k, k)
	return nil
}

func (q termQuery) Matches(d fields.Document) bool {
	want := termKey(q.field, q.tag, q.term)
	for _, f := range d.Fields {
		if f.Name != q.field {
			continue
		}
		terms, err := fieldTerms(f)
		if err != nil {
			continue
		}
		for _, t := range terms {
			if bytes.Equal(t, want) {
				return true
			}
		}
	}
	return false
}

func (q termQuery) String() string {
	return fmt.Sprintf("%s:%q", q.field, q.term)
}

type rangeQuery struct {
	field  string
	cfg    *numeric.Config
	lo, hi any
	loU    uint64
	hiU    uint64
}

// NumericRange matches documents whose numeric field lies in [lo, hi].
func NumericRange(field string, cfg *numeric.Config, lo, hi any) (Query, error) {
	loU, err := cfg.Sortable(lo)
	if err != nil {
		return nil, err
	}
	hiU, err := cfg.Sortable(hi)
	if err != nil {
		return nil, err
	}
	return rangeQuery{field: field, cfg: cfg, lo: lo, hi: hi, loU: loU, hiU: hiU}, nil
}

func (q rangeQuery) ranges(fn func(lower, upper []byte)) error {
	return q.cfg.SplitRange(q.lo, q.hi, func(lower, upper []byte) {
		fn(termKey(q.field, tagNumeric, lower), termKey(q.field, tagNumeric, upper))
	})
}

func (q rangeQuery) Matches(d fields.Document) bool {
	for _, f := range d.Fields {
		if f.Name != q.field || f.Kind != fields.NumericValue || !f.Spec.Indexed {
			continue
		}
		u, err := q.cfg.Sortable(f.Number)
		if err != nil {
			continue
		}
		if u >= q.loU && u <= q.hiU {
			return true
		}
	}
	return false
}

func (q rangeQuery) String() string {
	return fmt.Sprintf("%s:[%v TO %v]", q.field, q.lo, q.hi)
}

type andQuery []Query

// And matches documents matching every one of qs. And of nothing matches
// every document.
func And(qs ...Query) Query {
	switch len(qs) {
	case 0:
		return MatchAll()
	case 1:
		return qs[0]
	}
	return andQuery(append([]Query(nil), qs...))
}

// ranges reads the candidates of the first query only, any match is among them.
func (q andQuery) ranges(fn func(lower, upper []byte)) error {
	return q[0].ranges(fn)
}

func (q andQuery) Matches(d fields.Document) bool {
	for _, sub := range q {
		if !sub.Matches(d) {
			return false
		}
	}
	return true
}

func (q andQuery) String() string {
	parts := make([]string, len(q))
	for i, sub := range q {
		parts[i] = sub.String()
	}
	return "+" + strings.Join(parts, " +")
}

type allQuery struct{}

// MatchAll matches every live document.
func MatchAll() Query { return allQuery{} }

func (allQuery) ranges(func(lower, upper []byte)) error { return nil }

func (allQuery) Matches(fields.Document) bool { return true }

func (allQuery) String() string { return "*:*" }
