// Package keys maps storage-engine row keys and cell names to the primary
// key stored in the search index, and back.
package keys

import (
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
)

// ComparatorKind says whether a family's cell names are composites.
type ComparatorKind uint8

const (
	Simple ComparatorKind = iota
	Composite
)

func (k ComparatorKind) String() string {
	if k == Composite {
		return "composite"
	}
	return "simple"
}

// FamilyMeta is a snapshot of a column family's key metadata. Callers build
// it once and treat it as read-only; nothing in this package mutates it.
type FamilyMeta struct {
	Keyspace       string
	Name           string
	ComparatorKind ComparatorKind
	KeyValidator   *marshal.Type
	Comparator     *marshal.Type
	// HasCollections is true when the family declares collection columns.
	HasCollections bool
	// DefinitionType decodes column names. Nil means UTF8.
	DefinitionType *marshal.Type
	// Columns maps logical column names to their value types.
	Columns map[string]*marshal.Type
}

// ColumnDescriptor is one regular column of a family.
type ColumnDescriptor struct {
	Name      string
	Validator *marshal.Type
}

// NewTable builds the metadata of a CQL-style table: a partition key, zero or
// more clustering columns and regular columns. Tables with clustering columns
// or collections get a composite comparator of
// (clustering..., column name[, collections]).
func NewTable(keyspace, name string, partitionKey *marshal.Type, clustering []*marshal.Type, columns []ColumnDescriptor) *FamilyMeta {
	f := &FamilyMeta{
		Keyspace:       keyspace,
		Name:           name,
		KeyValidator:   partitionKey,
		DefinitionType: marshal.UTF8,
		Columns:        make(map[string]*marshal.Type, len(columns)),
	}

	collections := map[string]*marshal.Type{}
	for _, c := range columns {
		f.Columns[c.Name] = c.Validator
		if c.Validator.IsCollection() {
			collections[c.Name] = c.Validator
		}
	}

	if len(clustering) == 0 && len(collections) == 0 {
		f.ComparatorKind = Simple
		f.Comparator = marshal.UTF8
		return f
	}

	types := append([]*marshal.Type{}, clustering...)
	types = append(types, marshal.UTF8)
	if len(collections) > 0 {
		types = append(types, marshal.ColumnToCollection(collections))
		f.HasCollections = true
	}
	f.ComparatorKind = Composite
	f.Comparator = marshal.Composite(types...)
	return f
}

// Column returns the descriptor of a logical column.
func (f *FamilyMeta) Column(name string) (ColumnDescriptor, bool) {
	v, ok := f.Columns[name]
	return ColumnDescriptor{Name: name, Validator: v}, ok
}

func (f *FamilyMeta) definitionType() *marshal.Type {
	if f.DefinitionType == nil {
		return marshal.UTF8
	}
	return f.DefinitionType
}

// CellName builds the cell name of a regular column in a composite family:
// clustering values, the column name, then an optional collection key.
func (f *FamilyMeta) CellName(clustering [][]byte, column string, collectionKey []byte) ([]byte, error) {
	if f.ComparatorKind == Simple {
		return f.definitionType().Encode(column)
	}
	b := f.Comparator.Builder()
	for _, c := range clustering {
		if err := b.Add(c); err != nil {
			return nil, err
		}
	}
	if err := b.Add([]byte(column)); err != nil {
		return nil, err
	}
	if collectionKey != nil {
		if err := b.Add(collectionKey); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
