package fields

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/numeric"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/options"
)

// TestProjectColumnOneFieldPerSpec checks the field count and order.
func TestProjectColumnOneFieldPerSpec(t *testing.T) {
	col := keys.ColumnDescriptor{Name: "age", Validator: marshal.Int32}
	raw, _ := marshal.Int32.Encode(31)

	specs := []FieldSpec{
		{Indexed: true, Numeric: numeric.Int, PrecisionStep: 4},
		{Stored: true},
		{DocValues: true, Numeric: numeric.Double},
	}
	out, err := ProjectColumn(col, "age", raw, specs...)
	require.NoError(t, err)
	require.Len(t, out, 3)

	assert.Equal(t, NumericValue, out[0].Kind)
	assert.Equal(t, int32(31), out[0].Number)
	assert.Equal(t, TextValue, out[1].Kind)
	assert.Equal(t, "31", out[1].Text)
	assert.Equal(t, float64(31), out[2].Number)
	for i, f := range out {
		assert.Equal(t, "age", f.Name)
		assert.Equal(t, specs[i], f.Spec)
	}
}

func TestProjectText(t *testing.T) {
	col := keys.ColumnDescriptor{Name: "state", Validator: marshal.UTF8}
	out, err := ProjectColumn(col, "state", []byte("CA"), FieldSpec{Indexed: true})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "CA", out[0].Value())
}

func TestProjectBinary(t *testing.T) {
	col := keys.ColumnDescriptor{Name: "blob", Validator: marshal.Bytes}
	raw := []byte{1, 2}
	out, err := ProjectColumn(col, "blob", raw, FieldSpec{Stored: true})
	require.NoError(t, err)
	raw[0] = 7
	assert.Equal(t, []byte{1, 2}, out[0].Binary)
}

func TestProjectTimestampColumnAsLong(t *testing.T) {
	col := keys.ColumnDescriptor{Name: "at", Validator: marshal.Timestamp}
	raw, _ := marshal.Timestamp.Encode(int64(1700000000123))
	out, err := ProjectColumn(col, "at", raw, FieldSpec{Indexed: true, Numeric: numeric.Long})
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), out[0].Number)
}

func TestProjectCollections(t *testing.T) {
	list := keys.ColumnDescriptor{Name: "scores", Validator: marshal.ListOf(marshal.Long)}
	raw, _ := marshal.Long.Encode(int64(9))
	out, err := ProjectColumn(list, "scores", raw, FieldSpec{Indexed: true, Numeric: numeric.Long})
	require.NoError(t, err)
	assert.Equal(t, int64(9), out[0].Number)

	set := keys.ColumnDescriptor{Name: "tags", Validator: marshal.SetOf(marshal.UTF8)}
	_, err = ProjectColumn(set, "tags", nil, FieldSpec{Indexed: true})
	assert.True(t, errors.Is(err, indexerr.ErrUnsupportedType))
}

func TestProjectErrors(t *testing.T) {
	col := keys.ColumnDescriptor{Name: "age", Validator: marshal.Int32}
	_, err := ProjectColumn(col, "age", []byte{1, 2, 3}, FieldSpec{Indexed: true})
	assert.True(t, errors.Is(err, indexerr.ErrDecode))

	text := keys.ColumnDescriptor{Name: "state", Validator: marshal.UTF8}
	_, err = ProjectColumn(text, "state", []byte("CA"), FieldSpec{Numeric: numeric.Int})
	assert.True(t, errors.Is(err, indexerr.ErrUnsupportedType))

	_, err = ProjectColumn(keys.ColumnDescriptor{Name: "x"}, "x", nil, FieldSpec{})
	assert.True(t, errors.Is(err, indexerr.ErrUnsupportedType))
}

func TestProjectEmptyValue(t *testing.T) {
	col := keys.ColumnDescriptor{Name: "age", Validator: marshal.Int32}
	out, err := ProjectColumn(col, "age", nil, FieldSpec{Numeric: numeric.Int})
	require.NoError(t, err)
	assert.Empty(t, out)
}

// TestPrimaryKeyRoundTrip checks that the stored key decodes back losslessly.
func TestPrimaryKeyRoundTrip(t *testing.T) {
	cmp := marshal.Composite(marshal.UTF8, marshal.UTF8)
	key, err := cmp.Compose([]byte("K1"), []byte("c"))
	require.NoError(t, err)

	out := ProjectPrimaryKey(keys.ResolvedPrimaryKey{Key: key, Validator: cmp})
	require.Len(t, out, 1)
	assert.Equal(t, PKDocValues, out[0].Name)
	assert.True(t, out[0].Spec.DocValues)

	back, err := DecodePrimaryKey(out[0], cmp)
	require.NoError(t, err)
	assert.Equal(t, key, back)

	_, err = DecodePrimaryKey(Field{Name: "other"}, cmp)
	assert.True(t, errors.Is(err, indexerr.ErrDecode))

	_, err = DecodePrimaryKey(ProjectPrimaryKey(keys.ResolvedPrimaryKey{Key: []byte{1}, Validator: marshal.Int32})[0], marshal.Int32)
	assert.True(t, errors.Is(err, indexerr.ErrDecode))
}

func TestProjectTimestamp(t *testing.T) {
	out := ProjectTimestamp(1234)
	require.Len(t, out, 2)
	assert.Equal(t, TSDocValues, out[0].Name)
	assert.True(t, out[0].Spec.DocValues)
	assert.Equal(t, TSIndexed, out[1].Name)
	assert.True(t, out[1].Spec.Indexed)
	assert.False(t, out[1].Spec.Stored)
	assert.Equal(t, numeric.Long, out[1].Spec.Numeric)
	assert.Equal(t, out[0].Number, out[1].Number)
	assert.Equal(t, int64(1234), out[1].Number)
}

func TestSpecFor(t *testing.T) {
	opts := options.Options{options.NumericPrecisionStep: "8", "notes." + options.Tokenized: "false"}

	s, err := SpecFor(opts, "cf", "age", marshal.Int32)
	require.NoError(t, err)
	assert.Equal(t, FieldSpec{Indexed: true, Numeric: numeric.Int, PrecisionStep: 8}, s)

	s, err = SpecFor(opts, "cf", "state", marshal.UTF8)
	require.NoError(t, err)
	assert.True(t, s.Tokenized)

	s, err = SpecFor(opts, "cf", "notes", marshal.UTF8)
	require.NoError(t, err)
	assert.False(t, s.Tokenized)

	s, err = SpecFor(opts, "cf", "id", marshal.UUID)
	require.NoError(t, err)
	assert.False(t, s.Tokenized)
	assert.False(t, s.IsNumeric())

	s, err = SpecFor(opts, "cf", "scores", marshal.MapOf(marshal.UTF8, marshal.Double))
	require.NoError(t, err)
	assert.Equal(t, numeric.Double, s.Numeric)

	_, err = SpecFor(opts, "cf", "tags", marshal.SetOf(marshal.UTF8))
	assert.True(t, errors.Is(err, indexerr.ErrUnsupportedType))

	_, err = SpecFor(options.Options{options.NumericPrecisionStep: "0"}, "cf", "age", marshal.Int32)
	assert.True(t, errors.Is(err, indexerr.ErrConfig))
}

// TestNumericConfigFromSpec checks the config is derived from the same spec.
func TestNumericConfigFromSpec(t *testing.T) {
	c, ok := NumericConfig(FieldSpec{Numeric: numeric.Long, PrecisionStep: 6})
	require.True(t, ok)
	assert.Equal(t, 6, c.PrecisionStep)
	assert.Equal(t, numeric.Long, c.Kind)
	assert.Equal(t, numeric.Long, c.Format.Kind)

	_, ok = NumericConfig(FieldSpec{Indexed: true})
	assert.False(t, ok)

	// the step is never made up
	_, ok = NumericConfig(FieldSpec{Numeric: numeric.Int})
	assert.False(t, ok)
	_, ok = NumericConfig(FieldSpec{Numeric: numeric.Int, PrecisionStep: -2})
	assert.False(t, ok)
}

func TestDocumentMerge(t *testing.T) {
	pk := ProjectPrimaryKey(keys.ResolvedPrimaryKey{Key: []byte("k")})
	d := NewDocument(
		[]Field{{Name: "state", Text: "CA"}},
		pk,
		ProjectTimestamp(1),
	)
	d = d.Merge(NewDocument([]Field{{Name: "age", Kind: NumericValue, Number: int32(3)}}, ProjectTimestamp(2)))

	s, ok := d.Get("state")
	require.True(t, ok)
	assert.Equal(t, "CA", s.Text)
	_, ok = d.Get("age")
	assert.True(t, ok)
	ts, ok := d.Timestamp()
	require.True(t, ok)
	assert.Equal(t, int64(2), ts)
	key, ok := d.PrimaryKey()
	require.True(t, ok)
	assert.Equal(t, []byte("k"), key)

	d = d.Without("state")
	_, ok = d.Get("state")
	assert.False(t, ok)
}
