package sexp

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Encode renders v as expression text. It accepts decoded values and the
// canonical values produced by package canon: nil and false encode as nil,
// true as t, mappings as keyword property lists with dash-style keys.
func Encode(v any) (string, error) {
	var b strings.Builder
	if err := encodeValue(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encodeValue(b *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		b.WriteString(string(Nil))
	case bool:
		if val {
			b.WriteString(string(T))
		} else {
			b.WriteString(string(Nil))
		}
	case Symbol:
		b.WriteString(string(val))
	case string:
		writeString(b, val)
	case int:
		b.WriteString(strconv.Itoa(val))
	case int64:
		b.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("sexp: cannot encode %v", val)
		}
		s := strconv.FormatFloat(val, 'g', -1, 64)
		if !strings.ContainsAny(s, ".e") {
			s += ".0"
		}
		b.WriteString(s)
	case List:
		return encodeSeq(b, []any(val))
	case []any:
		return encodeSeq(b, val)
	case Pair:
		b.WriteByte('(')
		if err := encodeValue(b, val.Car); err != nil {
			return err
		}
		b.WriteString(" . ")
		if err := encodeValue(b, val.Cdr); err != nil {
			return err
		}
		b.WriteByte(')')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('(')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(':')
			b.WriteString(strings.ReplaceAll(k, "_", "-"))
			b.WriteByte(' ')
			if err := encodeValue(b, val[k]); err != nil {
				return err
			}
		}
		b.WriteByte(')')
	default:
		return fmt.Errorf("sexp: cannot encode %T", v)
	}
	return nil
}

// encodeSeq writes an empty sequence as [] since () reads back as nil.
func encodeSeq(b *strings.Builder, items []any) error {
	if len(items) == 0 {
		b.WriteString("[]")
		return nil
	}
	b.WriteByte('(')
	for i, item := range items {
		if i > 0 {
			b.WriteByte(' ')
		}
		if err := encodeValue(b, item); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func writeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
}
