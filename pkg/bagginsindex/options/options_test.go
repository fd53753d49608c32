package options

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

func TestResolveIndexDirectory(t *testing.T) {
	opts := Options{IndexDirName: "/data/idx", IndexFileName: "sg"}
	dir, err := ResolveIndexDirectory("ks", "cf", opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/idx", "ks", "cf", "sg"), dir)
}

func TestResolveIndexDirectoryMissing(t *testing.T) {
	_, err := ResolveIndexDirectory("ks", "cf", Options{IndexFileName: "sg"})
	assert.True(t, errors.Is(err, indexerr.ErrConfig))

	_, err = ResolveIndexDirectory("ks", "cf", Options{IndexDirName: "/d"})
	assert.True(t, errors.Is(err, indexerr.ErrConfig))
}

func TestColumnScopedLookup(t *testing.T) {
	opts := Options{Stored: "false", "state." + Stored: "true", NumericPrecisionStep: "8"}

	b, err := opts.Bool("state", Stored, false)
	require.NoError(t, err)
	assert.True(t, b)

	b, err = opts.Bool("other", Stored, true)
	require.NoError(t, err)
	assert.False(t, b)

	n, err := opts.Int("x", NumericPrecisionStep, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	n, err = Options{}.Int("x", NumericPrecisionStep, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBadValues(t *testing.T) {
	_, err := Options{Indexed: "yes please"}.Bool("", Indexed, true)
	assert.True(t, errors.Is(err, indexerr.ErrConfig))

	_, err = Options{NumericPrecisionStep: "four"}.Int("", NumericPrecisionStep, 4)
	assert.True(t, errors.Is(err, indexerr.ErrConfig))
}
