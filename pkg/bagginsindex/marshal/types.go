// Package marshal describes the storage engine's value types and converts
// their raw byte encodings to Go values, canonical strings and orderings.
//
// A *Type is immutable once built. The scalar types are package-level
// singletons; composite and collection types are built with Composite,
// ListOf, SetOf, MapOf and ColumnToCollection.
package marshal

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Kind is the closed set of value types understood by the codec.
type Kind uint8

const (
	KindBytes Kind = iota
	KindUTF8
	KindASCII
	KindInt32
	KindLong
	KindCounter
	KindFloat
	KindDouble
	KindBoolean
	KindTimestamp
	KindUUID
	KindTimeUUID
	KindComposite
	KindColumnToCollection
	KindList
	KindSet
	KindMap
)

var kindNames = map[Kind]string{
	KindBytes:              "blob",
	KindUTF8:               "text",
	KindASCII:              "ascii",
	KindInt32:              "int",
	KindLong:               "bigint",
	KindCounter:            "counter",
	KindFloat:              "float",
	KindDouble:             "double",
	KindBoolean:            "boolean",
	KindTimestamp:          "timestamp",
	KindUUID:               "uuid",
	KindTimeUUID:           "timeuuid",
	KindComposite:          "composite",
	KindColumnToCollection: "collections",
	KindList:               "list",
	KindSet:                "set",
	KindMap:                "map",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Type is a value type descriptor.
type Type struct {
	kind        Kind
	components  []*Type
	key         *Type
	value       *Type
	collections map[string]*Type
}

// Scalar singletons.
var (
	Bytes     = &Type{kind: KindBytes}
	UTF8      = &Type{kind: KindUTF8}
	ASCII     = &Type{kind: KindASCII}
	Int32     = &Type{kind: KindInt32}
	Long      = &Type{kind: KindLong}
	Counter   = &Type{kind: KindCounter}
	Float     = &Type{kind: KindFloat}
	Double    = &Type{kind: KindDouble}
	Boolean   = &Type{kind: KindBoolean}
	Timestamp = &Type{kind: KindTimestamp}
	UUID      = &Type{kind: KindUUID}
	TimeUUID  = &Type{kind: KindTimeUUID}
)

// Composite builds a composite type over the given component types.
func Composite(components ...*Type) *Type {
	c := make([]*Type, len(components))
	copy(c, components)
	return &Type{kind: KindComposite, components: c}
}

// ListOf builds a list type. Each list cell carries one element value.
func ListOf(elem *Type) *Type {
	return &Type{kind: KindList, key: TimeUUID, value: elem}
}

// SetOf builds a set type. Set elements live in the cell name, the cell value is empty.
func SetOf(elem *Type) *Type {
	return &Type{kind: KindSet, key: elem}
}

// MapOf builds a map type.
func MapOf(key, value *Type) *Type {
	return &Type{kind: KindMap, key: key, value: value}
}

// ColumnToCollection builds the trailing comparator component that maps
// collection column names to their collection types.
func ColumnToCollection(collections map[string]*Type) *Type {
	m := make(map[string]*Type, len(collections))
	for k, v := range collections {
		m[k] = v
	}
	return &Type{kind: KindColumnToCollection, collections: m}
}

func (t *Type) Kind() Kind { return t.kind }

// Components returns the component types of a composite type.
func (t *Type) Components() []*Type {
	out := make([]*Type, len(t.components))
	copy(out, t.components)
	return out
}

// Elem returns the element type of a list or set, or the key type of a map.
func (t *Type) Elem() *Type {
	if t.kind == KindList {
		return t.value
	}
	return t.key
}

// ValueType returns the type of a single collection cell value: the element
// type of a list, the value type of a map, nil for a set.
func (t *Type) ValueType() *Type {
	switch t.kind {
	case KindList, KindMap:
		return t.value
	}
	return nil
}

// Collection returns the collection type registered under name.
func (t *Type) Collection(name string) (*Type, bool) {
	c, ok := t.collections[name]
	return c, ok
}

func (t *Type) IsComposite() bool { return t.kind == KindComposite }

func (t *Type) IsCollection() bool {
	return t.kind == KindList || t.kind == KindSet || t.kind == KindMap
}

// IsNumeric reports whether values of t can be indexed as numbers.
func (t *Type) IsNumeric() bool {
	switch t.kind {
	case KindInt32, KindLong, KindCounter, KindFloat, KindDouble, KindTimestamp:
		return true
	}
	return false
}

// FixedWidth returns the encoded width of fixed-size scalars, or 0.
func (t *Type) FixedWidth() int {
	switch t.kind {
	case KindInt32, KindFloat:
		return 4
	case KindLong, KindCounter, KindDouble, KindTimestamp:
		return 8
	case KindBoolean:
		return 1
	case KindUUID, KindTimeUUID:
		return 16
	}
	return 0
}

func (t *Type) String() string {
	switch t.kind {
	case KindComposite:
		parts := make([]string, len(t.components))
		for i, c := range t.components {
			parts[i] = c.String()
		}
		return "composite<" + strings.Join(parts, ",") + ">"
	case KindList:
		return "list<" + t.value.String() + ">"
	case KindSet:
		return "set<" + t.key.String() + ">"
	case KindMap:
		return "map<" + t.key.String() + "," + t.value.String() + ">"
	case KindColumnToCollection:
		names := make([]string, 0, len(t.collections))
		for n := range t.collections {
			names = append(names, n)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = n + ":" + t.collections[n].String()
		}
		return "collections<" + strings.Join(parts, ",") + ">"
	}
	return t.kind.String()
}

var scalarByName = map[string]*Type{
	"blob":      Bytes,
	"bytes":     Bytes,
	"text":      UTF8,
	"varchar":   UTF8,
	"utf8":      UTF8,
	"ascii":     ASCII,
	"int":       Int32,
	"int32":     Int32,
	"bigint":    Long,
	"long":      Long,
	"counter":   Counter,
	"float":     Float,
	"double":    Double,
	"boolean":   Boolean,
	"timestamp": Timestamp,
	"uuid":      UUID,
	"timeuuid":  TimeUUID,
}

// Parse reads a CQL-style type name such as "int", "list<text>" or
// "map<text,bigint>".
func Parse(name string) (*Type, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	if t, ok := scalarByName[s]; ok {
		return t, nil
	}
	open := strings.IndexByte(s, '<')
	if open < 0 || !strings.HasSuffix(s, ">") {
		return nil, indexerr.New(indexerr.CodeUnsupportedType, "marshal.Parse", "unknown type %q", name)
	}
	outer, inner := s[:open], s[open+1:len(s)-1]
	args := splitTypeArgs(inner)
	parsed := make([]*Type, 0, len(args))
	for _, a := range args {
		t, err := Parse(a)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, t)
	}
	switch {
	case outer == "list" && len(parsed) == 1:
		return ListOf(parsed[0]), nil
	case outer == "set" && len(parsed) == 1:
		return SetOf(parsed[0]), nil
	case outer == "map" && len(parsed) == 2:
		return MapOf(parsed[0], parsed[1]), nil
	case outer == "composite" && len(parsed) > 0:
		return Composite(parsed...), nil
	}
	return nil, indexerr.New(indexerr.CodeUnsupportedType, "marshal.Parse", "unknown type %q", name)
}

// splitTypeArgs splits on top-level commas only.
func splitTypeArgs(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
