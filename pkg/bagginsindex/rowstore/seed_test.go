package rowstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
)

const seedRows = `
- key: K1
  clustering: [7]
  timestamp: 1700000000000000
  columns:
    state: CA
    age: 30
- key: K2
  clustering: [1]
  columns:
    state: NY
`

func events() *keys.FamilyMeta {
	return keys.NewTable("ks", "events", marshal.UTF8, []*marshal.Type{marshal.Int32}, []keys.ColumnDescriptor{
		{Name: "state", Validator: marshal.UTF8},
		{Name: "age", Validator: marshal.Int32},
		{Name: "tags", Validator: marshal.ListOf(marshal.UTF8)},
	})
}

func TestSeed(t *testing.T) {
	f := events()
	s := New(Config{Family: f})
	r := &recorder{}
	s.Subscribe(r)

	n, err := s.Seed(context.Background(), strings.NewReader(seedRows))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, r.puts, 3)

	seven, _ := marshal.Int32.Encode(7)
	name, err := f.CellName([][]byte{seven}, "age", nil)
	require.NoError(t, err)
	c, ok := s.Get([]byte("K1"), name)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 30}, c.Value)
	assert.Equal(t, int64(1700000000000000), c.Timestamp)

	assert.Len(t, s.Row([]byte("K2")), 1)
}

func TestSeedEmpty(t *testing.T) {
	s := New(Config{Family: events()})
	n, err := s.Seed(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSeedErrors(t *testing.T) {
	cases := map[string]struct {
		body string
		want error
	}{
		"unknown column": {"- key: K1\n  clustering: [1]\n  columns:\n    color: red\n", indexerr.ErrConfig},
		"collection":     {"- key: K1\n  clustering: [1]\n  columns:\n    tags: [a]\n", indexerr.ErrUnsupportedType},
		"clustering":     {"- key: K1\n  columns:\n    state: CA\n", indexerr.ErrConfig},
		"bad value":      {"- key: K1\n  clustering: [1]\n  columns:\n    age: old\n", indexerr.ErrUnsupportedType},
		"not yaml":       {"- key: [\n", indexerr.ErrDecode},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			s := New(Config{Family: events()})
			_, err := s.Seed(context.Background(), strings.NewReader(tc.body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want), err.Error())
		})
	}
}
