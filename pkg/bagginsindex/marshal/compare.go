package marshal

import (
	"bytes"
	"cmp"
	"time"

	"github.com/google/uuid"
)

// Compare orders two encodings of t. Empty values sort first. Text and
// blobs compare bytewise, numbers numerically, timeuuids by their embedded
// time, composites component by component.
func (t *Type) Compare(a, b []byte) (int, error) {
	if len(a) == 0 || len(b) == 0 {
		return cmp.Compare(len(a), len(b)), nil
	}
	switch t.kind {
	case KindBytes, KindUTF8, KindASCII, KindUUID, KindColumnToCollection, KindList, KindSet, KindMap:
		if t.kind == KindUTF8 || t.kind == KindASCII || t.kind == KindUUID {
			if err := t.Validate(a); err != nil {
				return 0, err
			}
			if err := t.Validate(b); err != nil {
				return 0, err
			}
		}
		return bytes.Compare(a, b), nil
	case KindComposite:
		return t.compareComposite(a, b)
	}

	va, err := t.Decode(a)
	if err != nil {
		return 0, err
	}
	vb, err := t.Decode(b)
	if err != nil {
		return 0, err
	}
	switch x := va.(type) {
	case int32:
		return cmp.Compare(x, vb.(int32)), nil
	case int64:
		return cmp.Compare(x, vb.(int64)), nil
	case float32:
		return cmp.Compare(x, vb.(float32)), nil
	case float64:
		return cmp.Compare(x, vb.(float64)), nil
	case bool:
		return cmp.Compare(boolRank(x), boolRank(vb.(bool))), nil
	case time.Time:
		return x.Compare(vb.(time.Time)), nil
	case uuid.UUID:
		y := vb.(uuid.UUID)
		if c := cmp.Compare(x.Time(), y.Time()); c != 0 {
			return c, nil
		}
		return bytes.Compare(x[:], y[:]), nil
	}
	return bytes.Compare(a, b), nil
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (t *Type) compareComposite(a, b []byte) (int, error) {
	pa, err := t.Split(a)
	if err != nil {
		return 0, err
	}
	pb, err := t.Split(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < len(pa) && i < len(pb); i++ {
		ct := Bytes
		if i < len(t.components) {
			ct = t.components[i]
		}
		c, err := ct.Compare(pa[i], pb[i])
		if err != nil {
			return 0, err
		}
		if c != 0 {
			return c, nil
		}
	}
	return cmp.Compare(len(pa), len(pb)), nil
}
