package rowstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
)

// SeedRow is one row of a seed file:
//
//	- key: K1
//	  clustering: [7]
//	  timestamp: 1700000000000000
//	  columns:
//	    state: CA
//	    age: 30
//
// Timestamp is optional and in microseconds; rows without one are stamped
// by the store clock.
type SeedRow struct {
	Key        any            `yaml:"key"`
	Clustering []any          `yaml:"clustering"`
	Timestamp  int64          `yaml:"timestamp"`
	Columns    map[string]any `yaml:"columns"`
}

// Seed writes the rows of a YAML seed file through the store, so subscribed
// listeners see them like any other write. It returns the number of cells
// written. Collection columns cannot be seeded.
func (s *Store) Seed(ctx context.Context, r io.Reader) (int, error) {
	var rows []SeedRow
	if err := yaml.NewDecoder(r).Decode(&rows); err != nil && !errors.Is(err, io.EOF) {
		return 0, indexerr.Wrap(err, indexerr.CodeDecode, "rowstore.Seed", "parse seed file")
	}

	var written int
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := s.seedRow(ctx, row)
		written += n
		if err != nil {
			return written, fmt.Errorf("seed row %d: %w", i, err)
		}
	}
	s.logger.Info("seeded rows", zap.Int("rows", len(rows)), zap.Int("cells", written))
	return written, nil
}

func (s *Store) seedRow(ctx context.Context, row SeedRow) (int, error) {
	f := s.family
	key, err := encodeSeed(f.KeyValidator, row.Key)
	if err != nil {
		return 0, err
	}
	clustering, err := seedClustering(f, row.Clustering)
	if err != nil {
		return 0, err
	}

	columns := make([]string, 0, len(row.Columns))
	for c := range row.Columns {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	var written int
	for _, column := range columns {
		typ, ok := f.Columns[column]
		if !ok {
			return written, indexerr.New(indexerr.CodeConfig, "rowstore.Seed", "%s.%s has no column %q", f.Keyspace, f.Name, column)
		}
		if typ.IsCollection() {
			return written, indexerr.New(indexerr.CodeUnsupportedType, "rowstore.Seed", "cannot seed collection column %q", column)
		}
		value, err := encodeSeed(typ, row.Columns[column])
		if err != nil {
			return written, err
		}
		name, err := f.CellName(clustering, column, nil)
		if err != nil {
			return written, err
		}
		if row.Timestamp > 0 {
			_, err = s.PutAt(ctx, key, name, value, row.Timestamp)
		} else {
			_, err = s.Put(ctx, key, name, value)
		}
		if err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// seedClustering encodes the clustering values of a row, one per clustering
// column of f.
func seedClustering(f *keys.FamilyMeta, values []any) ([][]byte, error) {
	var types []*marshal.Type
	if f.ComparatorKind == keys.Composite {
		types = f.Comparator.Components()
		types = types[:len(types)-1]
		if f.HasCollections {
			types = types[:len(types)-1]
		}
	}
	if len(values) != len(types) {
		return nil, indexerr.New(indexerr.CodeConfig, "rowstore.Seed",
			"%s.%s has %d clustering columns, row has %d", f.Keyspace, f.Name, len(types), len(values))
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		b, err := encodeSeed(types[i], v)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// encodeSeed encodes a decoded YAML scalar. YAML integers arrive as int and
// are widened so timestamp columns accept them too.
func encodeSeed(t *marshal.Type, v any) ([]byte, error) {
	if n, ok := v.(int); ok {
		v = int64(n)
	}
	return t.Encode(v)
}
