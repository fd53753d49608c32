// Package fields turns column values, primary keys and write timestamps into
// index fields.
package fields

import (
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/numeric"
)

// Reserved field names.
const (
	// PKDocValues holds the primary key of every document.
	PKDocValues = "_row_key_val"
	// TSDocValues holds the write timestamp as a retrievable value.
	TSDocValues = "_cf_ts_val"
	// TSIndexed holds the write timestamp as a searchable number.
	TSIndexed = "_cf_ts"
)

// FieldSpec describes how a value is indexed.
type FieldSpec struct {
	Indexed   bool
	Tokenized bool
	Stored    bool
	DocValues bool
	// Numeric is None for text and binary fields.
	Numeric       numeric.Kind
	PrecisionStep int
}

// IsNumeric reports whether the spec indexes numbers.
func (s FieldSpec) IsNumeric() bool { return s.Numeric != numeric.None }

// NumericConfig derives the numeric range configuration of a spec. It
// returns false for non numeric specs and for specs without a valid
// precision step.
func NumericConfig(s FieldSpec) (*numeric.Config, bool) {
	if !s.IsNumeric() || s.PrecisionStep < 1 {
		return nil, false
	}
	c, err := numeric.New(s.Numeric, s.PrecisionStep)
	if err != nil {
		return nil, false
	}
	return c, true
}

// ValueKind says which of a Field's value slots is set.
type ValueKind uint8

const (
	TextValue ValueKind = iota
	NumericValue
	BinaryValue
)

func (k ValueKind) String() string {
	switch k {
	case NumericValue:
		return "numeric"
	case BinaryValue:
		return "binary"
	}
	return "text"
}

// Field is one named value bound for the index.
type Field struct {
	Name string
	Spec FieldSpec
	Kind ValueKind
	Text string
	// Number is int32, int64, float32 or float64 according to Spec.Numeric.
	Number any
	Binary []byte
}

// Value returns whichever value slot Kind selects.
func (f Field) Value() any {
	switch f.Kind {
	case NumericValue:
		return f.Number
	case BinaryValue:
		return f.Binary
	}
	return f.Text
}
