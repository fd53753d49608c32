package marshal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// TestComposeSplit checks that split is the inverse of compose.
func TestComposeSplit(t *testing.T) {
	typ := Composite(UTF8, Int32, UTF8)
	id, _ := Int32.Encode(7)
	key, err := typ.Compose([]byte("alpha"), id, []byte("col"))
	require.NoError(t, err)

	want := []byte{0, 5, 'a', 'l', 'p', 'h', 'a', 0, 0, 4, 0, 0, 0, 7, 0, 0, 3, 'c', 'o', 'l', 0}
	assert.Equal(t, want, key)

	parts, err := typ.Split(key)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("alpha"), id, []byte("col")}, parts)

	s, err := typ.GetString(key)
	require.NoError(t, err)
	assert.Equal(t, "alpha:7:col", s)
}

// TestSplitIsStructural splits a key whose first component does not match
// the declared first type.
func TestSplitIsStructural(t *testing.T) {
	typ := Composite(Int32, UTF8)
	key, err := typ.Compose([]byte("row-key-is-text"), []byte("x"))
	require.NoError(t, err)

	parts, err := typ.Split(key)
	require.NoError(t, err)
	assert.Equal(t, "row-key-is-text", string(parts[0]))

	_, err = typ.Decode(key)
	assert.True(t, errors.Is(err, indexerr.ErrDecode))
}

func TestSplitTruncated(t *testing.T) {
	typ := Composite(UTF8)
	_, err := typ.Split([]byte{0, 9, 'a', 'b'})
	assert.True(t, errors.Is(err, indexerr.ErrDecode))

	_, err = typ.Split([]byte{0})
	assert.True(t, errors.Is(err, indexerr.ErrDecode))

	parts, err := typ.Split(nil)
	require.NoError(t, err)
	assert.Empty(t, parts)
}

func TestSplitNonComposite(t *testing.T) {
	_, err := UTF8.Split([]byte("x"))
	assert.True(t, errors.Is(err, indexerr.ErrInvalidComposite))
}

func TestBuilderCapacity(t *testing.T) {
	b := Composite(UTF8, UTF8).Builder()
	require.NoError(t, b.Add([]byte("a")))
	require.NoError(t, b.Add([]byte("b")))
	assert.Equal(t, 2, b.Len())
	err := b.Add([]byte("c"))
	assert.True(t, errors.Is(err, indexerr.ErrInvalidComposite))
}

// An oversized component is bad data, not a broken family.
func TestBuilderOversizedComponent(t *testing.T) {
	b := Composite(Bytes, UTF8).Builder()
	err := b.Add(make([]byte, maxComponentLen+1))
	assert.True(t, errors.Is(err, indexerr.ErrDecode))
	assert.False(t, errors.Is(err, indexerr.ErrInvalidComposite))
	assert.Zero(t, b.Len())

	require.NoError(t, b.Add(make([]byte, maxComponentLen)))
	_, err = Composite(UTF8).Compose(make([]byte, maxComponentLen+1))
	assert.True(t, errors.Is(err, indexerr.ErrDecode))
}

func TestBuilderCopiesInput(t *testing.T) {
	b := Composite(Bytes).Builder()
	in := []byte{1, 2, 3}
	require.NoError(t, b.Add(in))
	in[0] = 9
	assert.Equal(t, []byte{0, 3, 1, 2, 3, 0}, b.Build())
}

func TestCompositeCompare(t *testing.T) {
	typ := Composite(Int32, UTF8)
	one, _ := Int32.Encode(1)
	two, _ := Int32.Encode(2)
	a, _ := typ.Compose(one, []byte("z"))
	b, _ := typ.Compose(two, []byte("a"))
	c, err := typ.Compare(a, b)
	require.NoError(t, err)
	assert.Equal(t, -1, c)

	prefix, _ := typ.Compose(one)
	c, err = typ.Compare(prefix, a)
	require.NoError(t, err)
	assert.Equal(t, -1, c)
}

func TestCompositeEncodeValues(t *testing.T) {
	typ := Composite(UTF8, Long)
	b, err := typ.Encode([]any{"k", int64(5)})
	require.NoError(t, err)
	v, err := typ.Decode(b)
	require.NoError(t, err)
	assert.Equal(t, []any{"k", int64(5)}, v)
}
