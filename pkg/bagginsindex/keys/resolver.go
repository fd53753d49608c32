package keys

import (
	"go.uber.org/zap"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
)

// ResolvedPrimaryKey is the key stored in the index for a row-column event,
// together with the type that can split or validate it.
type ResolvedPrimaryKey struct {
	Key       []byte
	Validator *marshal.Type
}

// PartialKey reports a composite key built from fewer column components than
// the family's prefix size. It is not an error: the key is still usable, just
// less specific than expected.
type PartialKey struct {
	Keyspace string
	Family   string
	Want     int
	Got      int
}

// Resolution is the outcome of resolving one row-column event.
type Resolution struct {
	PrimaryKey ResolvedPrimaryKey
	// Column is the logical column name carried by the cell name.
	Column  string
	Partial *PartialKey
}

// Resolver resolves primary keys. It is safe for concurrent use; the only
// state it holds is the logger and the partial-key hook.
type Resolver struct {
	log       *zap.Logger
	onPartial func(PartialKey)
}

// NewResolver returns a Resolver. onPartial, when set, is called for every
// partial key after it has been logged.
func NewResolver(log *zap.Logger, onPartial func(PartialKey)) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log, onPartial: onPartial}
}

// ResolvePrimaryKey returns the index primary key for a cell of rowKey.
// Simple families store the row key as is; composite families store the row
// key followed by the clustering prefix of the cell name.
func (r *Resolver) ResolvePrimaryKey(rowKey []byte, f *FamilyMeta, columnName []byte) (ResolvedPrimaryKey, error) {
	if f.ComparatorKind != Composite {
		// the column name is not part of a simple key, so it is never decoded
		return simplePrimaryKey(rowKey, f), nil
	}
	res, err := r.Resolve(rowKey, f, columnName)
	if err != nil {
		return ResolvedPrimaryKey{}, err
	}
	return res.PrimaryKey, nil
}

// Resolve resolves the primary key and the logical column name in one pass.
func (r *Resolver) Resolve(rowKey []byte, f *FamilyMeta, columnName []byte) (Resolution, error) {
	if f.ComparatorKind != Composite {
		name, err := f.definitionType().GetString(columnName)
		if err != nil {
			return Resolution{}, err
		}
		return Resolution{PrimaryKey: simplePrimaryKey(rowKey, f), Column: name}, nil
	}

	b, name, partial, err := r.makeCompositePK(rowKey, f, columnName)
	if err != nil {
		return Resolution{}, err
	}
	return Resolution{
		PrimaryKey: ResolvedPrimaryKey{Key: b.Build(), Validator: f.Comparator},
		Column:     name,
		Partial:    partial,
	}, nil
}

func simplePrimaryKey(rowKey []byte, f *FamilyMeta) ResolvedPrimaryKey {
	key := make([]byte, len(rowKey))
	copy(key, rowKey)
	return ResolvedPrimaryKey{Key: key, Validator: f.KeyValidator}
}

// MakeCompositePK builds the composite primary key of a cell and returns the
// logical column name found in the cell name.
func (r *Resolver) MakeCompositePK(rowKey []byte, f *FamilyMeta, columnName []byte) (*marshal.CompositeBuilder, string, error) {
	b, name, _, err := r.makeCompositePK(rowKey, f, columnName)
	return b, name, err
}

func (r *Resolver) makeCompositePK(rowKey []byte, f *FamilyMeta, columnName []byte) (*marshal.CompositeBuilder, string, *PartialKey, error) {
	if f.Comparator == nil || !f.Comparator.IsComposite() {
		return nil, "", nil, indexerr.New(indexerr.CodeInvalidComposite, "keys.MakeCompositePK",
			"%s.%s declares a composite comparator but has %v", f.Keyspace, f.Name, f.Comparator)
	}
	types := f.Comparator.Components()
	components, err := f.Comparator.Split(columnName)
	if err != nil {
		return nil, "", nil, err
	}

	// the column name sits before the collection component when there is one
	idx := len(types) - 1
	if types[len(types)-1].Kind() == marshal.KindColumnToCollection {
		idx = len(types) - 2
	}
	prefixSize := len(types) - 1
	if f.HasCollections {
		prefixSize = len(types) - 2
	}

	// a degenerate cell name without the column component still gets a key
	var name string
	if idx >= 0 && idx < len(components) {
		name, err = f.definitionType().GetString(components[idx])
		if err != nil {
			return nil, "", nil, err
		}
	}

	b := f.Comparator.Builder()
	if err := b.Add(rowKey); err != nil {
		return nil, "", nil, err
	}
	n := min(prefixSize, len(components))
	for i := 0; i < n; i++ {
		if err := b.Add(components[i]); err != nil {
			return nil, "", nil, err
		}
	}

	var partial *PartialKey
	if n < prefixSize {
		partial = &PartialKey{Keyspace: f.Keyspace, Family: f.Name, Want: prefixSize, Got: n}
		r.log.Warn("partial primary key",
			zap.String("keyspace", f.Keyspace),
			zap.String("family", f.Name),
			zap.Int("want", prefixSize),
			zap.Int("got", n),
		)
		if r.onPartial != nil {
			r.onPartial(*partial)
		}
	}
	return b, name, partial, nil
}

// SplitComposite splits a composed primary key back into its components.
func SplitComposite(comparator *marshal.Type, key []byte) ([][]byte, error) {
	return comparator.Split(key)
}

// FirstComponent returns the row key of a split primary key.
func FirstComponent(components [][]byte) ([]byte, error) {
	if len(components) == 0 {
		return nil, indexerr.Decode("keys.FirstComponent", "no components")
	}
	return components[0], nil
}

// RowKeyOf maps an index primary key back to the storage row key.
func RowKeyOf(f *FamilyMeta, pk []byte) ([]byte, error) {
	if f.ComparatorKind != Composite {
		return pk, nil
	}
	parts, err := SplitComposite(f.Comparator, pk)
	if err != nil {
		return nil, err
	}
	return FirstComponent(parts)
}

// ColumnNameOf decodes a raw column name with the family's definition type.
func ColumnNameOf(f *FamilyMeta, name []byte) (string, error) {
	return f.definitionType().GetString(name)
}
