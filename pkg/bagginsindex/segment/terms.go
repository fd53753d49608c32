package segment

import (
	"strings"
	"unicode"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

// Term keys are <field> 0x00 <tag> <term>, so one field's terms are
// contiguous and each value kind sorts on its own.
const (
	tagText    byte = 't'
	tagBinary  byte = 'b'
	tagNumeric byte = 'n'
)

func termKey(field string, tag byte, term []byte) []byte {
	k := make([]byte, 0, len(field)+2+len(term))
	k = append(k, field...)
	k = append(k, 0, tag)
	return append(k, term...)
}

// Tokenize lowercases s and splits it on anything that is not a letter or
// a digit.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// NormalizeTerm turns query text into the term a field with spec indexes.
func NormalizeTerm(spec fields.FieldSpec, text string) string {
	if spec.Tokenized {
		return strings.ToLower(text)
	}
	return text
}

// fieldTerms returns the term keys an indexed field contributes.
func fieldTerms(f fields.Field) ([][]byte, error) {
	if !f.Spec.Indexed {
		return nil, nil
	}
	switch f.Kind {
	case fields.NumericValue:
		cfg, ok := fields.NumericConfig(f.Spec)
		if !ok {
			return nil, indexerr.New(indexerr.CodeConfig, "segment.terms", "field %q has no numeric config (step %d)", f.Name, f.Spec.PrecisionStep)
		}
		terms, err := cfg.Terms(f.Number)
		if err != nil {
			return nil, err
		}
		out := make([][]byte, len(terms))
		for i, t := range terms {
			out[i] = termKey(f.Name, tagNumeric, t)
		}
		return out, nil
	case fields.BinaryValue:
		return [][]byte{termKey(f.Name, tagBinary, f.Binary)}, nil
	}

	if f.Spec.Tokenized {
		toks := Tokenize(f.Text)
		out := make([][]byte, 0, len(toks))
		seen := make(map[string]struct{}, len(toks))
		for _, tok := range toks {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, termKey(f.Name, tagText, []byte(tok)))
		}
		return out, nil
	}
	if f.Text == "" {
		return nil, nil
	}
	return [][]byte{termKey(f.Name, tagText, []byte(f.Text))}, nil
}

// documentTerms returns every term key of d, deduplicated.
func documentTerms(d fields.Document) ([][]byte, error) {
	var out [][]byte
	seen := map[string]struct{}{}
	for _, f := range d.Fields {
		terms, err := fieldTerms(f)
		if err != nil {
			return nil, err
		}
		for _, t := range terms {
			if _, ok := seen[string(t)]; ok {
				continue
			}
			seen[string(t)] = struct{}{}
			out = append(out, t)
		}
	}
	return out, nil
}
