package marshal

import (
	"encoding/binary"
	"strings"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Composite wire layout, per component:
//
//	uint16 length (big-endian) | component bytes | end-of-component byte
const (
	eocEqual        byte = 0x00
	maxComponentLen      = 0xffff
)

// Split breaks a composite encoding into its raw components. Splitting is
// structural: component lengths are honoured but component bytes are not
// checked against the declared types, because a composed primary key carries
// the row key in slot 0.
func (t *Type) Split(b []byte) ([][]byte, error) {
	if t.kind != KindComposite {
		return nil, indexerr.New(indexerr.CodeInvalidComposite, "marshal.Split", "%s is not a composite type", t)
	}
	var out [][]byte
	for i := 0; i < len(b); {
		if len(b)-i < 2 {
			return nil, indexerr.Decode("marshal.Split", "truncated length prefix at offset %d", i)
		}
		n := int(binary.BigEndian.Uint16(b[i:]))
		i += 2
		if len(b)-i < n+1 {
			return nil, indexerr.Decode("marshal.Split", "component %d claims %d bytes, %d left", len(out), n, len(b)-i)
		}
		c := make([]byte, n)
		copy(c, b[i:i+n])
		out = append(out, c)
		i += n + 1 // skip end-of-component
	}
	return out, nil
}

// Compose encodes components in order.
func (t *Type) Compose(components ...[]byte) ([]byte, error) {
	b := t.Builder()
	for _, c := range components {
		if err := b.Add(c); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// CompositeBuilder accumulates components of one composite value.
type CompositeBuilder struct {
	typ        *Type
	components [][]byte
	size       int
}

// Builder returns an empty builder for t.
func (t *Type) Builder() *CompositeBuilder {
	return &CompositeBuilder{typ: t}
}

// Add appends a copy of component.
func (b *CompositeBuilder) Add(component []byte) error {
	if b.typ.kind != KindComposite {
		return indexerr.New(indexerr.CodeInvalidComposite, "marshal.Builder.Add", "%s is not a composite type", b.typ)
	}
	if len(b.components) >= len(b.typ.components) {
		return indexerr.New(indexerr.CodeInvalidComposite, "marshal.Builder.Add",
			"composite of %d components is full", len(b.typ.components))
	}
	if len(component) > maxComponentLen {
		return indexerr.Decode("marshal.Builder.Add", "component of %d bytes exceeds %d", len(component), maxComponentLen)
	}
	c := make([]byte, len(component))
	copy(c, component)
	b.components = append(b.components, c)
	b.size += 2 + len(c) + 1
	return nil
}

// Len is the number of components added so far.
func (b *CompositeBuilder) Len() int { return len(b.components) }

// Type returns the composite type the builder serializes with.
func (b *CompositeBuilder) Type() *Type { return b.typ }

// Build serializes the accumulated components.
func (b *CompositeBuilder) Build() []byte {
	out := make([]byte, 0, b.size)
	for _, c := range b.components {
		out = binary.BigEndian.AppendUint16(out, uint16(len(c)))
		out = append(out, c...)
		out = append(out, eocEqual)
	}
	return out
}

func (t *Type) decodeComposite(b []byte) (any, error) {
	parts, err := t.Split(b)
	if err != nil {
		return nil, err
	}
	if len(parts) > len(t.components) {
		return nil, indexerr.Decode("marshal.composite", "%d components for %d types", len(parts), len(t.components))
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		v, err := t.components[i].Decode(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (t *Type) encodeComposite(v any) ([]byte, error) {
	switch x := v.(type) {
	case [][]byte:
		return t.Compose(x...)
	case []any:
		if len(x) > len(t.components) {
			return nil, indexerr.New(indexerr.CodeInvalidComposite, "marshal.composite",
				"%d values for %d types", len(x), len(t.components))
		}
		b := t.Builder()
		for i, e := range x {
			enc, err := t.components[i].Encode(e)
			if err != nil {
				return nil, err
			}
			if err := b.Add(enc); err != nil {
				return nil, err
			}
		}
		return b.Build(), nil
	}
	return nil, cannotEncode("marshal.composite", v)
}

func (t *Type) compositeString(b []byte) (string, error) {
	parts, err := t.Split(b)
	if err != nil {
		return "", err
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		ct := Bytes
		if i < len(t.components) {
			ct = t.components[i]
		}
		s, err := ct.GetString(p)
		if err != nil {
			return "", err
		}
		out[i] = strings.ReplaceAll(s, ":", `\:`)
	}
	return strings.Join(out, ":"), nil
}
