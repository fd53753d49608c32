package fields

// Document is the set of fields indexed for one primary key.
type Document struct {
	Fields []Field
}

// NewDocument concatenates field groups, typically the column fields, the
// primary key fields and the timestamp fields of one event.
func NewDocument(groups ...[]Field) Document {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	d := Document{Fields: make([]Field, 0, n)}
	for _, g := range groups {
		d.Fields = append(d.Fields, g...)
	}
	return d
}

// Get returns the first field named name.
func (d Document) Get(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// PrimaryKey returns the primary key bytes of the document.
func (d Document) PrimaryKey() ([]byte, bool) {
	f, ok := d.Get(PKDocValues)
	if !ok || f.Kind != BinaryValue {
		return nil, false
	}
	return f.Binary, true
}

// Timestamp returns the write timestamp of the document.
func (d Document) Timestamp() (int64, bool) {
	f, ok := d.Get(TSDocValues)
	if !ok {
		return 0, false
	}
	ts, ok := f.Number.(int64)
	return ts, ok
}

// Merge returns d updated with other: every field name present in other
// replaces all of d's fields of that name, the rest of d is kept.
func (d Document) Merge(other Document) Document {
	replaced := make(map[string]struct{}, len(other.Fields))
	for _, f := range other.Fields {
		replaced[f.Name] = struct{}{}
	}
	out := Document{Fields: make([]Field, 0, len(d.Fields)+len(other.Fields))}
	for _, f := range d.Fields {
		if _, ok := replaced[f.Name]; !ok {
			out.Fields = append(out.Fields, f)
		}
	}
	out.Fields = append(out.Fields, other.Fields...)
	return out
}

// Without returns d minus every field named name.
func (d Document) Without(name string) Document {
	out := Document{Fields: make([]Field, 0, len(d.Fields))}
	for _, f := range d.Fields {
		if f.Name != name {
			out.Fields = append(out.Fields, f)
		}
	}
	return out
}
