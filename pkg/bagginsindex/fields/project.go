package fields

import (
	"math"
	"time"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/numeric"
)

var (
	pkSpec = FieldSpec{Stored: true, DocValues: true}
	tsSpec = mustSpec(SpecFor(IDFieldOptions(), "", TSIndexed, marshal.Long))
)

func mustSpec(s FieldSpec, err error) FieldSpec {
	if err != nil {
		panic(err)
	}
	return s
}

// ProjectColumn converts a cell value into one field per spec, all named
// name. Collection cells are projected through their value type. An empty
// fixed-width value projects to no fields.
func ProjectColumn(column keys.ColumnDescriptor, name string, value []byte, specs ...FieldSpec) ([]Field, error) {
	if column.Validator == nil {
		return nil, indexerr.New(indexerr.CodeUnsupportedType, "fields.ProjectColumn", "column %q has no validator", column.Name)
	}
	vt, err := valueType(column.Validator)
	if err != nil {
		return nil, err
	}
	v, err := vt.Decode(value)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}

	out := make([]Field, 0, len(specs))
	for _, spec := range specs {
		f, err := project(name, vt, v, value, spec)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

func project(name string, vt *marshal.Type, v any, raw []byte, spec FieldSpec) (Field, error) {
	f := Field{Name: name, Spec: spec}
	if spec.IsNumeric() {
		if !vt.IsNumeric() {
			return Field{}, indexerr.New(indexerr.CodeUnsupportedType, "fields.ProjectColumn",
				"%s: %s values cannot feed a %s field", name, vt, spec.Numeric)
		}
		n, err := toNumber(v, spec.Numeric)
		if err != nil {
			return Field{}, err
		}
		f.Kind = NumericValue
		f.Number = n
		return f, nil
	}

	switch vt.Kind() {
	case marshal.KindBytes:
		f.Kind = BinaryValue
		f.Binary = append([]byte{}, raw...)
	case marshal.KindUTF8, marshal.KindASCII:
		f.Text = v.(string)
	case marshal.KindInt32, marshal.KindLong, marshal.KindCounter, marshal.KindFloat, marshal.KindDouble,
		marshal.KindBoolean, marshal.KindTimestamp, marshal.KindUUID, marshal.KindTimeUUID:
		s, err := vt.GetString(raw)
		if err != nil {
			return Field{}, err
		}
		f.Text = s
	default:
		return Field{}, indexerr.New(indexerr.CodeUnsupportedType, "fields.ProjectColumn", "%s: no field mapping for %s", name, vt)
	}
	return f, nil
}

func toNumber(v any, kind numeric.Kind) (any, error) {
	var (
		i       int64
		f       float64
		isFloat bool
	)
	switch x := v.(type) {
	case int32:
		i = int64(x)
	case int64:
		i = x
	case float32:
		f, isFloat = float64(x), true
	case float64:
		f, isFloat = x, true
	case time.Time:
		i = x.UnixMilli()
	default:
		return nil, indexerr.New(indexerr.CodeUnsupportedType, "fields.toNumber", "%T is not a number", v)
	}

	switch kind {
	case numeric.Int:
		if isFloat || i < math.MinInt32 || i > math.MaxInt32 {
			return nil, indexerr.New(indexerr.CodeUnsupportedType, "fields.toNumber", "%v does not fit an int field", v)
		}
		return int32(i), nil
	case numeric.Long:
		if isFloat {
			return nil, indexerr.New(indexerr.CodeUnsupportedType, "fields.toNumber", "%v does not fit a long field", v)
		}
		return i, nil
	case numeric.Float:
		if isFloat {
			return float32(f), nil
		}
		return float32(i), nil
	case numeric.Double:
		if isFloat {
			return f, nil
		}
		return float64(i), nil
	}
	return nil, indexerr.New(indexerr.CodeUnsupportedType, "fields.toNumber", "kind %s", kind)
}

// ProjectPrimaryKey returns the single doc-values field carrying pk. The
// bytes are copied.
func ProjectPrimaryKey(pk keys.ResolvedPrimaryKey) []Field {
	return []Field{{
		Name:   PKDocValues,
		Spec:   pkSpec,
		Kind:   BinaryValue,
		Binary: append([]byte{}, pk.Key...),
	}}
}

// DecodePrimaryKey recovers the primary key bytes from a field produced by
// ProjectPrimaryKey and checks them against validator.
func DecodePrimaryKey(f Field, validator *marshal.Type) ([]byte, error) {
	if f.Name != PKDocValues || f.Kind != BinaryValue {
		return nil, indexerr.Decode("fields.DecodePrimaryKey", "field %q (%s) is not a primary key", f.Name, f.Kind)
	}
	if validator.IsComposite() {
		if _, err := validator.Split(f.Binary); err != nil {
			return nil, err
		}
	} else if err := validator.Validate(f.Binary); err != nil {
		return nil, err
	}
	return append([]byte{}, f.Binary...), nil
}

// ProjectTimestamp returns the doc-values and the indexed timestamp fields,
// in that order, both holding ts.
func ProjectTimestamp(ts int64) []Field {
	return []Field{
		{
			Name:   TSDocValues,
			Spec:   FieldSpec{DocValues: true, Numeric: numeric.Long, PrecisionStep: tsSpec.PrecisionStep},
			Kind:   NumericValue,
			Number: ts,
		},
		{
			Name:   TSIndexed,
			Spec:   tsSpec,
			Kind:   NumericValue,
			Number: ts,
		},
	}
}
