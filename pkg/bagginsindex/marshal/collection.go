package marshal

import (
	"encoding/binary"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Whole-collection layout: uint16 count, then each element (and for maps each
// key followed by its value) as uint16 length | bytes.

func (t *Type) decodeCollection(b []byte) (any, error) {
	op := "marshal." + t.kind.String()
	if len(b) == 0 {
		return nil, nil
	}
	if len(b) < 2 {
		return nil, indexerr.Decode(op, "truncated element count")
	}
	n := int(binary.BigEndian.Uint16(b))
	rest := b[2:]
	next := func() ([]byte, error) {
		if len(rest) < 2 {
			return nil, indexerr.Decode(op, "truncated element length")
		}
		l := int(binary.BigEndian.Uint16(rest))
		if len(rest)-2 < l {
			return nil, indexerr.Decode(op, "element claims %d bytes, %d left", l, len(rest)-2)
		}
		e := rest[2 : 2+l]
		rest = rest[2+l:]
		return e, nil
	}

	if t.kind == KindMap {
		out := make([]MapEntry, 0, n)
		for i := 0; i < n; i++ {
			kb, err := next()
			if err != nil {
				return nil, err
			}
			vb, err := next()
			if err != nil {
				return nil, err
			}
			k, err := t.key.Decode(kb)
			if err != nil {
				return nil, err
			}
			v, err := t.value.Decode(vb)
			if err != nil {
				return nil, err
			}
			out = append(out, MapEntry{Key: k, Value: v})
		}
		if len(rest) != 0 {
			return nil, indexerr.Decode(op, "%d trailing bytes", len(rest))
		}
		return out, nil
	}

	elem := t.Elem()
	out := make([]any, 0, n)
	for i := 0; i < n; i++ {
		eb, err := next()
		if err != nil {
			return nil, err
		}
		v, err := elem.Decode(eb)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if len(rest) != 0 {
		return nil, indexerr.Decode(op, "%d trailing bytes", len(rest))
	}
	return out, nil
}

func (t *Type) encodeCollection(v any) ([]byte, error) {
	op := "marshal." + t.kind.String()
	appendElem := func(out []byte, typ *Type, e any) ([]byte, error) {
		enc, err := typ.Encode(e)
		if err != nil {
			return nil, err
		}
		if len(enc) > maxComponentLen {
			return nil, indexerr.New(indexerr.CodeUnsupportedType, op, "element of %d bytes too large", len(enc))
		}
		out = binary.BigEndian.AppendUint16(out, uint16(len(enc)))
		return append(out, enc...), nil
	}

	if t.kind == KindMap {
		entries, ok := v.([]MapEntry)
		if !ok {
			return nil, cannotEncode(op, v)
		}
		out := binary.BigEndian.AppendUint16(nil, uint16(len(entries)))
		var err error
		for _, e := range entries {
			if out, err = appendElem(out, t.key, e.Key); err != nil {
				return nil, err
			}
			if out, err = appendElem(out, t.value, e.Value); err != nil {
				return nil, err
			}
		}
		return out, nil
	}

	elems, ok := v.([]any)
	if !ok {
		return nil, cannotEncode(op, v)
	}
	out := binary.BigEndian.AppendUint16(nil, uint16(len(elems)))
	var err error
	for _, e := range elems {
		if out, err = appendElem(out, t.Elem(), e); err != nil {
			return nil, err
		}
	}
	return out, nil
}
