package numeric

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

func mustConfig(t *testing.T, kind Kind, step int) *Config {
	t.Helper()
	c, err := New(kind, step)
	require.NoError(t, err)
	return c
}

func TestNewRejects(t *testing.T) {
	_, err := New(None, 4)
	assert.True(t, errors.Is(err, indexerr.ErrConfig))
	_, err = New(Long, 0)
	assert.True(t, errors.Is(err, indexerr.ErrConfig))
}

// TestSortableOrder checks that the unsigned encoding keeps numeric order.
func TestSortableOrder(t *testing.T) {
	cases := []struct {
		kind   Kind
		values []any
	}{
		{Int, []any{int32(math.MinInt32), int32(-1), int32(0), int32(1), int32(math.MaxInt32)}},
		{Long, []any{int64(math.MinInt64), int64(-7), int64(0), int64(7), int64(math.MaxInt64)}},
		{Float, []any{float32(math.Inf(-1)), float32(-2.5), float32(-0.0), float32(0.5), float32(math.Inf(1))}},
		{Double, []any{math.Inf(-1), -1e300, -1.0, 0.0, 1e-300, 3.5, math.Inf(1)}},
	}
	for _, tc := range cases {
		c := mustConfig(t, tc.kind, 4)
		var prev uint64
		for i, v := range tc.values {
			u, err := c.Sortable(v)
			require.NoError(t, err)
			if i > 0 {
				assert.Greater(t, u, prev, "%s %v", tc.kind, v)
			}
			assert.Equal(t, v, c.FromSortable(u))
			prev = u
		}
	}
}

func TestTermsPerShift(t *testing.T) {
	c := mustConfig(t, Long, 16)
	terms, err := c.Terms(int64(42))
	require.NoError(t, err)
	require.Len(t, terms, 4)
	for i, term := range terms {
		shift, _, err := c.ParseTerm(term)
		require.NoError(t, err)
		assert.Equal(t, i*16, shift)
		assert.Len(t, term, 9)
	}

	c = mustConfig(t, Int, 64)
	terms, err = c.Terms(int32(42))
	require.NoError(t, err)
	require.Len(t, terms, 1, "a step wider than the value indexes full precision only")
}

func TestTermsRejectOverflow(t *testing.T) {
	c := mustConfig(t, Int, 4)
	_, err := c.Terms(int64(math.MaxInt32) + 1)
	assert.True(t, errors.Is(err, indexerr.ErrUnsupportedType))
}

// matches reports whether any term of v falls into any emitted range.
func matches(t *testing.T, c *Config, v any, ranges [][2][]byte) bool {
	terms, err := c.Terms(v)
	require.NoError(t, err)
	for _, term := range terms {
		for _, r := range ranges {
			if bytes.Compare(term, r[0]) >= 0 && bytes.Compare(term, r[1]) <= 0 {
				return true
			}
		}
	}
	return false
}

// TestSplitRangeCoversExactly checks membership against brute force.
func TestSplitRangeCoversExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, step := range []int{1, 4, 8, 32} {
		c := mustConfig(t, Int, step)
		for round := 0; round < 20; round++ {
			lo := int32(rng.Intn(4000) - 2000)
			hi := lo + int32(rng.Intn(600))
			var ranges [][2][]byte
			require.NoError(t, c.SplitRange(lo, hi, func(l, u []byte) {
				ranges = append(ranges, [2][]byte{l, u})
			}))
			for v := lo - 40; v <= hi+40; v++ {
				want := v >= lo && v <= hi
				assert.Equal(t, want, matches(t, c, v, ranges), "step %d range [%d,%d] value %d", step, lo, hi, v)
			}
		}
	}
}

func TestSplitRangeDoubles(t *testing.T) {
	c := mustConfig(t, Double, 4)
	var ranges [][2][]byte
	require.NoError(t, c.SplitRange(-1.5, 2.25, func(l, u []byte) {
		ranges = append(ranges, [2][]byte{l, u})
	}))
	for _, v := range []float64{-1.5, -1.0, 0, 1, 2.25} {
		assert.True(t, matches(t, c, v, ranges), "%v", v)
	}
	for _, v := range []float64{-1.51, 2.26, math.Inf(1), -100} {
		assert.False(t, matches(t, c, v, ranges), "%v", v)
	}
}

func TestSplitRangeFullSpan(t *testing.T) {
	c := mustConfig(t, Long, 4)
	var ranges [][2][]byte
	require.NoError(t, c.SplitRange(int64(math.MinInt64), int64(math.MaxInt64), func(l, u []byte) {
		ranges = append(ranges, [2][]byte{l, u})
	}))
	assert.NotEmpty(t, ranges)
	assert.True(t, matches(t, c, int64(0), ranges))
	assert.True(t, matches(t, c, int64(math.MaxInt64), ranges))
}

func TestSplitRangeEmpty(t *testing.T) {
	c := mustConfig(t, Long, 4)
	called := false
	require.NoError(t, c.SplitRange(int64(5), int64(4), func(l, u []byte) { called = true }))
	assert.False(t, called)
}

func TestFormat(t *testing.T) {
	f := Format{Kind: Int}
	v, err := f.Parse("-12")
	require.NoError(t, err)
	assert.Equal(t, int32(-12), v)
	assert.Equal(t, "-12", f.Format(v))

	_, err = f.Parse("1.5")
	assert.True(t, errors.Is(err, indexerr.ErrDecode))

	f = Format{Kind: Double}
	v, err = f.Parse("2.5e3")
	require.NoError(t, err)
	assert.Equal(t, "2500", f.Format(v))
}
