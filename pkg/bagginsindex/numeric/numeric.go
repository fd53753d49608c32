// Package numeric turns numbers into prefix-coded trie terms so that range
// queries touch a handful of terms instead of every distinct value.
//
// A value is indexed once per precision step: the full value at shift 0,
// then with the low PrecisionStep bits dropped, and so on. A range query is
// split into sub-ranges aligned on those shifts (SplitRange).
package numeric

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Kind is the numeric type of an indexed field.
type Kind uint8

const (
	None Kind = iota
	Int
	Long
	Float
	Double
)

func (k Kind) String() string {
	switch k {
	case Int:
		return "int"
	case Long:
		return "long"
	case Float:
		return "float"
	case Double:
		return "double"
	}
	return "none"
}

// Bits is the width of the sortable encoding of k.
func (k Kind) Bits() int {
	switch k {
	case Int, Float:
		return 32
	case Long, Double:
		return 64
	}
	return 0
}

// DefaultPrecisionStep is used when an index does not configure one.
const DefaultPrecisionStep = 4

const (
	shiftStart64 byte = 0x20
	shiftStart32 byte = 0x60
)

// Config describes how one numeric field is indexed and parsed.
type Config struct {
	PrecisionStep int
	Kind          Kind
	Format        Format
}

// New returns a Config, rejecting non-numeric kinds and steps below 1.
func New(kind Kind, precisionStep int) (*Config, error) {
	if kind == None {
		return nil, indexerr.New(indexerr.CodeConfig, "numeric.New", "kind is not numeric")
	}
	if precisionStep < 1 {
		return nil, indexerr.New(indexerr.CodeConfig, "numeric.New", "precision step %d < 1", precisionStep)
	}
	return &Config{PrecisionStep: precisionStep, Kind: kind, Format: Format{Kind: kind}}, nil
}

// Sortable maps v onto an unsigned integer whose order matches the numeric
// order of v.
func (c *Config) Sortable(v any) (uint64, error) {
	switch c.Kind {
	case Int:
		n, ok := asInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return 0, c.badValue(v)
		}
		return uint64(uint32(int32(n)) ^ 0x80000000), nil
	case Long:
		n, ok := asInt64(v)
		if !ok {
			return 0, c.badValue(v)
		}
		return uint64(n) ^ (1 << 63), nil
	case Float:
		f, ok := asFloat64(v)
		if !ok {
			return 0, c.badValue(v)
		}
		bits := math.Float32bits(float32(f))
		if bits&0x80000000 != 0 {
			bits = ^bits
		} else {
			bits |= 0x80000000
		}
		return uint64(bits), nil
	case Double:
		f, ok := asFloat64(v)
		if !ok {
			return 0, c.badValue(v)
		}
		bits := math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		return bits, nil
	}
	return 0, c.badValue(v)
}

// FromSortable is the inverse of Sortable.
func (c *Config) FromSortable(u uint64) any {
	switch c.Kind {
	case Int:
		return int32(uint32(u) ^ 0x80000000)
	case Long:
		return int64(u ^ (1 << 63))
	case Float:
		bits := uint32(u)
		if bits&0x80000000 != 0 {
			bits &^= 0x80000000
		} else {
			bits = ^bits
		}
		return math.Float32frombits(bits)
	case Double:
		if u&(1<<63) != 0 {
			u &^= 1 << 63
		} else {
			u = ^u
		}
		return math.Float64frombits(u)
	}
	return nil
}

func (c *Config) badValue(v any) error {
	return indexerr.New(indexerr.CodeUnsupportedType, "numeric."+c.Kind.String(), "cannot index %T(%v)", v, v)
}

// Term encodes the sortable value u at the given shift.
func (c *Config) Term(shift int, u uint64) []byte {
	bits := c.Kind.Bits()
	start := shiftStart64
	if bits == 32 {
		start = shiftStart32
	}
	out := make([]byte, 1, 1+bits/8)
	out[0] = start + byte(shift)
	v := u >> uint(shift)
	if bits == 32 {
		return binary.BigEndian.AppendUint32(out, uint32(v))
	}
	return binary.BigEndian.AppendUint64(out, v)
}

// ParseTerm decodes a term produced by Term. The value is returned shifted
// back into place, with the dropped low bits zeroed.
func (c *Config) ParseTerm(term []byte) (shift int, u uint64, err error) {
	bits := c.Kind.Bits()
	if len(term) != 1+bits/8 {
		return 0, 0, indexerr.Decode("numeric.ParseTerm", "term of %d bytes for %s", len(term), c.Kind)
	}
	start := shiftStart64
	if bits == 32 {
		start = shiftStart32
	}
	shift = int(term[0]) - int(start)
	if shift < 0 || shift >= bits {
		return 0, 0, indexerr.Decode("numeric.ParseTerm", "bad shift byte 0x%02x", term[0])
	}
	if bits == 32 {
		u = uint64(binary.BigEndian.Uint32(term[1:]))
	} else {
		u = binary.BigEndian.Uint64(term[1:])
	}
	return shift, u << uint(shift), nil
}

// Terms returns the trie terms indexed for v, full precision first.
func (c *Config) Terms(v any) ([][]byte, error) {
	u, err := c.Sortable(v)
	if err != nil {
		return nil, err
	}
	bits := c.Kind.Bits()
	var out [][]byte
	for shift := 0; shift < bits; shift += c.PrecisionStep {
		out = append(out, c.Term(shift, u))
	}
	return out, nil
}

// SplitRange calls fn with the inclusive [lower, upper] term bounds of the
// sub-ranges that together cover the inclusive numeric range [lo, hi]. It
// does not call fn when lo > hi.
func (c *Config) SplitRange(lo, hi any, fn func(lower, upper []byte)) error {
	minBound, err := c.Sortable(lo)
	if err != nil {
		return err
	}
	maxBound, err := c.Sortable(hi)
	if err != nil {
		return err
	}
	if minBound > maxBound {
		return nil
	}

	bits := c.Kind.Bits()
	maxVal := uint64(math.MaxUint64)
	if bits == 32 {
		maxVal = math.MaxUint32
	}
	step := c.PrecisionStep
	emit := func(lo, hi uint64, shift int) {
		fn(c.Term(shift, lo), c.Term(shift, hi))
	}

	for shift := 0; ; shift += step {
		if shift+step >= bits {
			emit(minBound, maxBound, shift)
			return nil
		}
		diff := uint64(1) << uint(shift+step)
		mask := ((uint64(1) << uint(step)) - 1) << uint(shift)
		hasLower := minBound&mask != 0
		hasUpper := maxBound&mask != mask

		nextMin := minBound
		if hasLower {
			nextMin = minBound + diff
		}
		nextMin &^= mask
		nextMax := maxBound
		if hasUpper {
			nextMax = maxBound - diff
		}
		nextMax &^= mask

		lowerWrapped := nextMin < minBound || nextMin > maxVal
		upperWrapped := nextMax > maxBound
		if nextMin > nextMax || lowerWrapped || upperWrapped {
			emit(minBound, maxBound, shift)
			return nil
		}
		if hasLower {
			emit(minBound, minBound|mask, shift)
		}
		if hasUpper {
			emit(maxBound&^mask, maxBound, shift)
		}
		minBound, maxBound = nextMin, nextMax
	}
}

// Format parses and prints values of one numeric kind. It never consults
// the process locale.
type Format struct {
	Kind Kind
}

// Parse reads s as a value of the format's kind.
func (f Format) Parse(s string) (any, error) {
	var (
		v   any
		err error
	)
	switch f.Kind {
	case Int:
		var n int64
		n, err = strconv.ParseInt(s, 10, 32)
		v = int32(n)
	case Long:
		v, err = strconv.ParseInt(s, 10, 64)
	case Float:
		var x float64
		x, err = strconv.ParseFloat(s, 32)
		v = float32(x)
	case Double:
		v, err = strconv.ParseFloat(s, 64)
	default:
		return nil, indexerr.New(indexerr.CodeUnsupportedType, "numeric.Parse", "kind %s", f.Kind)
	}
	if err != nil {
		return nil, indexerr.Wrap(err, indexerr.CodeDecode, "numeric.Parse", "%q as %s", s, f.Kind)
	}
	return v, nil
}

// Format prints v in canonical form.
func (f Format) Format(v any) string {
	switch x := v.(type) {
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

func asInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case int16:
		return int64(x), true
	case int8:
		return int64(x), true
	case uint32:
		return int64(x), true
	}
	return 0, false
}

func asFloat64(v any) (float64, bool) {
	switch x := v.(type) {
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	if n, ok := asInt64(v); ok {
		return float64(n), true
	}
	return 0, false
}
