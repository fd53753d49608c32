package marshal

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// TimestampLayout is the canonical string form of timestamp values.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// MapEntry is one decoded map entry.
type MapEntry struct {
	Key   any
	Value any
}

// Decode converts b to its Go value:
//
//	blob []byte, text/ascii string, int int32, bigint/counter int64,
//	float float32, double float64, boolean bool, timestamp time.Time,
//	uuid/timeuuid uuid.UUID, composite []any, list/set []any, map []MapEntry.
//
// An empty buffer of a fixed-width type is the storage engine's empty value
// and decodes to nil.
func (t *Type) Decode(b []byte) (any, error) {
	if w := t.FixedWidth(); w > 0 {
		if len(b) == 0 {
			return nil, nil
		}
		if len(b) != w {
			return nil, indexerr.Decode("marshal."+t.kind.String(), "expected %d bytes, got %d", w, len(b))
		}
	}

	switch t.kind {
	case KindBytes, KindColumnToCollection:
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil
	case KindUTF8:
		if !utf8.Valid(b) {
			return nil, indexerr.Decode("marshal.text", "invalid UTF-8")
		}
		return string(b), nil
	case KindASCII:
		for i, c := range b {
			if c > 0x7f {
				return nil, indexerr.Decode("marshal.ascii", "non-ASCII byte 0x%02x at %d", c, i)
			}
		}
		return string(b), nil
	case KindInt32:
		return int32(binary.BigEndian.Uint32(b)), nil
	case KindLong, KindCounter:
		return int64(binary.BigEndian.Uint64(b)), nil
	case KindFloat:
		return math.Float32frombits(binary.BigEndian.Uint32(b)), nil
	case KindDouble:
		return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
	case KindBoolean:
		return b[0] != 0, nil
	case KindTimestamp:
		return time.UnixMilli(int64(binary.BigEndian.Uint64(b))).UTC(), nil
	case KindUUID, KindTimeUUID:
		u, err := uuid.FromBytes(b)
		if err != nil {
			return nil, indexerr.Wrap(err, indexerr.CodeDecode, "marshal."+t.kind.String(), "bad uuid")
		}
		if t.kind == KindTimeUUID && u.Version() != 1 {
			return nil, indexerr.Decode("marshal.timeuuid", "expected version 1 uuid, got version %d", u.Version())
		}
		return u, nil
	case KindComposite:
		return t.decodeComposite(b)
	case KindList, KindSet, KindMap:
		return t.decodeCollection(b)
	}
	return nil, indexerr.New(indexerr.CodeUnsupportedType, "marshal.Decode", "no decoder for %s", t)
}

// Validate fails when b is not a valid encoding of t.
func (t *Type) Validate(b []byte) error {
	_, err := t.Decode(b)
	return err
}

// GetString renders b in the type's canonical string form. Blobs render as
// lower-case hex, composites join their components with ':'.
func (t *Type) GetString(b []byte) (string, error) {
	if t.kind == KindComposite {
		return t.compositeString(b)
	}
	if t.kind == KindBytes || t.kind == KindColumnToCollection {
		return hex.EncodeToString(b), nil
	}
	v, err := t.Decode(b)
	if err != nil {
		return "", err
	}
	return t.format(v), nil
}

// format renders an already-decoded value of t.
func (t *Type) format(v any) string {
	if v == nil {
		return ""
	}
	switch x := v.(type) {
	case []byte:
		return hex.EncodeToString(x)
	case string:
		return x
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.Format(TimestampLayout)
	case uuid.UUID:
		return x.String()
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = t.Elem().format(e)
		}
		if t.kind == KindSet {
			return "{" + strings.Join(parts, ", ") + "}"
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case []MapEntry:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = t.key.format(e.Key) + ": " + t.value.format(e.Value)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	return ""
}

// Encode converts a Go value to the type's byte encoding. nil encodes to the
// empty value.
func (t *Type) Encode(v any) ([]byte, error) {
	if v == nil {
		return []byte{}, nil
	}
	op := "marshal.Encode(" + t.String() + ")"
	switch t.kind {
	case KindBytes, KindColumnToCollection:
		switch x := v.(type) {
		case []byte:
			return append([]byte{}, x...), nil
		case string:
			return []byte(x), nil
		}
	case KindUTF8, KindASCII:
		var s string
		switch x := v.(type) {
		case string:
			s = x
		case []byte:
			s = string(x)
		default:
			return nil, cannotEncode(op, v)
		}
		out := []byte(s)
		if err := t.Validate(out); err != nil {
			return nil, err
		}
		return out, nil
	case KindInt32:
		n, ok := toInt64(v)
		if !ok {
			return nil, cannotEncode(op, v)
		}
		if n < math.MinInt32 || n > math.MaxInt32 {
			return nil, indexerr.New(indexerr.CodeUnsupportedType, op, "%d overflows int", n)
		}
		return binary.BigEndian.AppendUint32(nil, uint32(int32(n))), nil
	case KindLong, KindCounter:
		n, ok := toInt64(v)
		if !ok {
			return nil, cannotEncode(op, v)
		}
		return binary.BigEndian.AppendUint64(nil, uint64(n)), nil
	case KindFloat:
		f, ok := toFloat64(v)
		if !ok {
			return nil, cannotEncode(op, v)
		}
		return binary.BigEndian.AppendUint32(nil, math.Float32bits(float32(f))), nil
	case KindDouble:
		f, ok := toFloat64(v)
		if !ok {
			return nil, cannotEncode(op, v)
		}
		return binary.BigEndian.AppendUint64(nil, math.Float64bits(f)), nil
	case KindBoolean:
		if x, ok := v.(bool); ok {
			if x {
				return []byte{1}, nil
			}
			return []byte{0}, nil
		}
	case KindTimestamp:
		switch x := v.(type) {
		case time.Time:
			return binary.BigEndian.AppendUint64(nil, uint64(x.UnixMilli())), nil
		case int64:
			return binary.BigEndian.AppendUint64(nil, uint64(x)), nil
		}
	case KindUUID, KindTimeUUID:
		var u uuid.UUID
		switch x := v.(type) {
		case uuid.UUID:
			u = x
		case string:
			parsed, err := uuid.Parse(x)
			if err != nil {
				return nil, indexerr.Wrap(err, indexerr.CodeDecode, op, "bad uuid %q", x)
			}
			u = parsed
		default:
			return nil, cannotEncode(op, v)
		}
		out := u[:]
		if err := t.Validate(out); err != nil {
			return nil, err
		}
		return append([]byte{}, out...), nil
	case KindComposite:
		return t.encodeComposite(v)
	case KindList, KindSet, KindMap:
		return t.encodeCollection(v)
	}
	return nil, cannotEncode(op, v)
}

func cannotEncode(op string, v any) error {
	return indexerr.New(indexerr.CodeUnsupportedType, op, "cannot encode %T", v)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}
