// Package options reads the string options attached to an index definition.
package options

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Option keys.
const (
	IndexDirName         = "index_dir_name"
	IndexFileName        = "index_file_name"
	Indexed              = "indexed"
	Stored               = "stored"
	Tokenized            = "tokenized"
	DocValues            = "doc_values"
	NumericPrecisionStep = "numeric_precision_step"
)

// Options are the raw key/value options of one index.
type Options map[string]string

// ResolveIndexDirectory returns <index_dir_name>/<keyspace>/<family>/<index_file_name>.
// Nothing is created on disk.
func ResolveIndexDirectory(keyspace, family string, opts Options) (string, error) {
	dir := strings.TrimSpace(opts[IndexDirName])
	file := strings.TrimSpace(opts[IndexFileName])
	if dir == "" {
		return "", indexerr.New(indexerr.CodeConfig, "options.ResolveIndexDirectory", "missing %s", IndexDirName)
	}
	if file == "" {
		return "", indexerr.New(indexerr.CodeConfig, "options.ResolveIndexDirectory", "missing %s", IndexFileName)
	}
	return filepath.Join(dir, keyspace, family, file), nil
}

// Lookup returns the value of key for column, preferring a column scoped
// "<column>.<key>" entry over the index wide one.
func (o Options) Lookup(column, key string) (string, bool) {
	if column != "" {
		if v, ok := o[column+"."+key]; ok {
			return v, true
		}
	}
	v, ok := o[key]
	return v, ok
}

// Bool reads a boolean option, falling back to def when unset.
func (o Options) Bool(column, key string, def bool) (bool, error) {
	v, ok := o.Lookup(column, key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, indexerr.Wrap(err, indexerr.CodeConfig, "options.Bool", "%s=%q", key, v)
	}
	return b, nil
}

// Int reads an integer option, falling back to def when unset.
func (o Options) Int(column, key string, def int) (int, error) {
	v, ok := o.Lookup(column, key)
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, indexerr.Wrap(err, indexerr.CodeConfig, "options.Int", "%s=%q", key, v)
	}
	return n, nil
}
