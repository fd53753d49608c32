package fields

import (
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/numeric"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/options"
)

// IDFieldOptions are the options of the internal timestamp field: indexed,
// not stored, not tokenized.
func IDFieldOptions() options.Options {
	return options.Options{
		options.Indexed:              "true",
		options.Stored:               "false",
		options.Tokenized:            "false",
		options.DocValues:            "false",
		options.NumericPrecisionStep: "4",
	}
}

// NumericKindOf maps a value type to the numeric kind it is indexed as.
func NumericKindOf(t *marshal.Type) numeric.Kind {
	switch t.Kind() {
	case marshal.KindInt32:
		return numeric.Int
	case marshal.KindLong, marshal.KindCounter, marshal.KindTimestamp:
		return numeric.Long
	case marshal.KindFloat:
		return numeric.Float
	case marshal.KindDouble:
		return numeric.Double
	}
	return numeric.None
}

// valueType is the type of the bytes a cell of a column carries.
func valueType(validator *marshal.Type) (*marshal.Type, error) {
	if !validator.IsCollection() {
		return validator, nil
	}
	vt := validator.ValueType()
	if vt == nil {
		return nil, indexerr.New(indexerr.CodeUnsupportedType, "fields.valueType",
			"%s cells carry no value to index", validator)
	}
	return vt, nil
}

// SpecFor builds the FieldSpec of a column from the index options. Numbers
// become numeric fields with the configured precision step, text is
// tokenized unless the options say otherwise, every other scalar is a
// keyword.
func SpecFor(opts options.Options, family, column string, validator *marshal.Type) (FieldSpec, error) {
	vt, err := valueType(validator)
	if err != nil {
		return FieldSpec{}, err
	}
	switch vt.Kind() {
	case marshal.KindComposite, marshal.KindColumnToCollection, marshal.KindList, marshal.KindSet, marshal.KindMap:
		return FieldSpec{}, indexerr.New(indexerr.CodeUnsupportedType, "fields.SpecFor",
			"%s.%s: cannot index %s values", family, column, vt)
	}

	var spec FieldSpec
	if spec.Indexed, err = opts.Bool(column, options.Indexed, true); err != nil {
		return FieldSpec{}, err
	}
	if spec.Stored, err = opts.Bool(column, options.Stored, false); err != nil {
		return FieldSpec{}, err
	}
	if spec.DocValues, err = opts.Bool(column, options.DocValues, false); err != nil {
		return FieldSpec{}, err
	}

	if kind := NumericKindOf(vt); kind != numeric.None {
		step, err := opts.Int(column, options.NumericPrecisionStep, numeric.DefaultPrecisionStep)
		if err != nil {
			return FieldSpec{}, err
		}
		if step < 1 {
			return FieldSpec{}, indexerr.New(indexerr.CodeConfig, "fields.SpecFor",
				"%s.%s: %s must be positive, got %d", family, column, options.NumericPrecisionStep, step)
		}
		spec.Numeric = kind
		spec.PrecisionStep = step
		return spec, nil
	}

	if spec.Tokenized, err = opts.Bool(column, options.Tokenized, vt.Kind() == marshal.KindUTF8); err != nil {
		return FieldSpec{}, err
	}
	return spec, nil
}
