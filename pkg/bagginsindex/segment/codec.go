package segment

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/numeric"
)

// Documents and log records are written in protobuf wire format so that
// fields can be added later without breaking existing segments.
//
//	Document { repeated Field field = 1; }
//	Field    { bytes name = 1; uint32 kind = 2; bytes text = 3; bytes binary = 4;
//	           uint32 number_kind = 5; fixed64 number = 6;
//	           uint32 flags = 7; uint32 numeric = 8; uint32 precision_step = 9; }
//	Record   { uint32 op = 1; bytes pk = 2; bytes doc = 3; uint64 segment = 4; }

const (
	flagIndexed = 1 << iota
	flagTokenized
	flagStored
	flagDocValues
)

type op uint8

const (
	opUpsert op = iota + 1
	opDelete
	opCheckpoint
)

type record struct {
	op      op
	pk      []byte
	doc     []byte
	segment uint64
}

func encodeRecord(r record) []byte {
	b := protowire.AppendTag(nil, 1, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(r.op))
	if r.pk != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, r.pk)
	}
	if r.doc != nil {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, r.doc)
	}
	if r.segment != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, r.segment)
	}
	return b
}

func decodeRecord(b []byte) (record, error) {
	var r record
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch num {
		case 1:
			r.op = op(x)
		case 2:
			r.pk = append([]byte{}, v...)
		case 3:
			r.doc = append([]byte{}, v...)
		case 4:
			r.segment = x
		}
		return nil
	})
	if err != nil {
		return record{}, err
	}
	if r.op < opUpsert || r.op > opCheckpoint {
		return record{}, indexerr.Decode("segment.decodeRecord", "unknown op %d", r.op)
	}
	return r, nil
}

func encodeDocument(d fields.Document) []byte {
	var b []byte
	for _, f := range d.Fields {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeField(f))
	}
	return b
}

func encodeField(f fields.Field) []byte {
	b := protowire.AppendTag(nil, 1, protowire.BytesType)
	b = protowire.AppendString(b, f.Name)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Kind))
	switch f.Kind {
	case fields.TextValue:
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendString(b, f.Text)
	case fields.BinaryValue:
		b = protowire.AppendTag(b, 4, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Binary)
	case fields.NumericValue:
		kind, bits := numberBits(f.Number)
		b = protowire.AppendTag(b, 5, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(kind))
		b = protowire.AppendTag(b, 6, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, bits)
	}

	var flags uint64
	if f.Spec.Indexed {
		flags |= flagIndexed
	}
	if f.Spec.Tokenized {
		flags |= flagTokenized
	}
	if f.Spec.Stored {
		flags |= flagStored
	}
	if f.Spec.DocValues {
		flags |= flagDocValues
	}
	b = protowire.AppendTag(b, 7, protowire.VarintType)
	b = protowire.AppendVarint(b, flags)
	b = protowire.AppendTag(b, 8, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Spec.Numeric))
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.Spec.PrecisionStep))
	return b
}

func decodeDocument(b []byte) (fields.Document, error) {
	var d fields.Document
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != 1 {
			return nil
		}
		f, err := decodeField(v)
		if err != nil {
			return err
		}
		d.Fields = append(d.Fields, f)
		return nil
	})
	return d, err
}

func decodeField(b []byte) (fields.Field, error) {
	var (
		f       fields.Field
		numKind numeric.Kind
		bits    uint64
	)
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error {
		switch num {
		case 1:
			f.Name = string(v)
		case 2:
			f.Kind = fields.ValueKind(x)
		case 3:
			f.Text = string(v)
		case 4:
			f.Binary = append([]byte{}, v...)
		case 5:
			numKind = numeric.Kind(x)
		case 6:
			bits = x
		case 7:
			f.Spec.Indexed = x&flagIndexed != 0
			f.Spec.Tokenized = x&flagTokenized != 0
			f.Spec.Stored = x&flagStored != 0
			f.Spec.DocValues = x&flagDocValues != 0
		case 8:
			f.Spec.Numeric = numeric.Kind(x)
		case 9:
			f.Spec.PrecisionStep = int(x)
		}
		return nil
	})
	if err != nil {
		return fields.Field{}, err
	}
	if f.Kind == fields.NumericValue {
		f.Number = numberFromBits(numKind, bits)
	}
	if f.Kind == fields.BinaryValue && f.Binary == nil {
		f.Binary = []byte{}
	}
	return f, nil
}

func numberBits(v any) (numeric.Kind, uint64) {
	switch x := v.(type) {
	case int32:
		return numeric.Int, uint64(int64(x))
	case int64:
		return numeric.Long, uint64(x)
	case float32:
		return numeric.Float, uint64(math.Float32bits(x))
	case float64:
		return numeric.Double, math.Float64bits(x)
	}
	return numeric.None, 0
}

func numberFromBits(k numeric.Kind, bits uint64) any {
	switch k {
	case numeric.Int:
		return int32(int64(bits))
	case numeric.Long:
		return int64(bits)
	case numeric.Float:
		return math.Float32frombits(uint32(bits))
	case numeric.Double:
		return math.Float64frombits(bits)
	}
	return nil
}

// consumeMessage walks the top-level fields of b. For bytes fields v is set,
// for varint and fixed64 fields x is set. Unknown wire types are skipped.
func consumeMessage(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, x uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return indexerr.Wrap(protowire.ParseError(n), indexerr.CodeDecode, "segment.consume", "tag")
		}
		b = b[n:]

		var (
			v []byte
			x uint64
		)
		switch typ {
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		case protowire.VarintType:
			x, n = protowire.ConsumeVarint(b)
		case protowire.Fixed64Type:
			x, n = protowire.ConsumeFixed64(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n >= 0 {
				b = b[n:]
				continue
			}
		}
		if n < 0 {
			return indexerr.Wrap(protowire.ParseError(n), indexerr.CodeDecode, "segment.consume", "field %d", num)
		}
		b = b[n:]
		if err := fn(num, typ, v, x); err != nil {
			return err
		}
	}
	return nil
}
