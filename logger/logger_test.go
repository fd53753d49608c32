package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

func TestInitLoggerWritesJSON(t *testing.T) {
	dir := t.TempDir()
	l, err := InitLogger(Options{Dir: dir, Name: "test", Level: "warn"})
	require.NoError(t, err)
	l.Info("dropped")
	l.Warn("kept")
	_ = l.Sync()

	b, err := os.ReadFile(filepath.Join(dir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"msg":"kept"`)
	assert.Contains(t, string(b), `"timestamp"`)
	assert.NotContains(t, string(b), "dropped")
}

func TestInitLoggerBadLevel(t *testing.T) {
	_, err := InitLogger(Options{Dir: t.TempDir(), Name: "test", Level: "loud"})
	assert.True(t, errors.Is(err, indexerr.ErrConfig))
}
