package indexer

import (
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/segment"
)

// Equals matches rows whose column holds text. On tokenized columns text is
// split the way values are and a row matches when it holds every token, in
// any order and case.
func (ix *Indexer) Equals(text string) segment.Query {
	if !ix.spec.Tokenized {
		return segment.Term(ix.column.Name, text)
	}
	toks := segment.Tokenize(text)
	if len(toks) == 0 {
		return segment.Term(ix.column.Name, segment.NormalizeTerm(ix.spec, text))
	}
	qs := make([]segment.Query, len(toks))
	for i, tok := range toks {
		qs[i] = segment.Term(ix.column.Name, tok)
	}
	return segment.And(qs...)
}

// Range matches rows whose numeric column lies in [lo, hi].
func (ix *Indexer) Range(lo, hi any) (segment.Query, error) {
	cfg, ok := fields.NumericConfig(ix.spec)
	if !ok {
		return nil, indexerr.New(indexerr.CodeUnsupportedType, "indexer.Range", "column %q is not numeric", ix.column.Name)
	}
	return segment.NumericRange(ix.column.Name, cfg, lo, hi)
}

// WrittenBetween matches rows whose indexed cell was written in [from, to],
// in microseconds.
func (ix *Indexer) WrittenBetween(from, to int64) (segment.Query, error) {
	ts := fields.ProjectTimestamp(0)[1]
	cfg, _ := fields.NumericConfig(ts.Spec)
	return segment.NumericRange(fields.TSIndexed, cfg, from, to)
}

// All matches every indexed row.
func (ix *Indexer) All() segment.Query {
	return segment.MatchAll()
}
