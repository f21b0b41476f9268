// Package canon maps decoded expressions to canonical result values:
// nil, bool, int64, float64, string, []any and map[string]any.
package canon

import (
	"fmt"
	"strings"

	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/danmuck/mupipe/internal/sexp"
)

// ErrMalformedAssociation reports a list that starts like an association
// list but does not alternate keyword keys and values, or whose keys
// collide once normalized.
var ErrMalformedAssociation = fmt.Errorf("%w: malformed association list", protocol.ErrProtocol)

// Hashify converts raw into a canonical value. Children are converted before
// their parent; whether a list is an association list depends only on its
// own elements.
//
// A list whose first element is a keyword is an association list: it must
// have even length and a keyword at every even position.
func Hashify(raw any) (any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case sexp.Symbol:
		switch v {
		case sexp.Nil:
			return nil, nil
		case sexp.T:
			return true, nil
		}
		return string(v), nil
	case sexp.List:
		return hashifySeq([]any(v))
	case []any:
		return hashifySeq(v)
	case sexp.Pair:
		car, err := Hashify(v.Car)
		if err != nil {
			return nil, err
		}
		cdr, err := Hashify(v.Cdr)
		if err != nil {
			return nil, err
		}
		return []any{car, cdr}, nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			hv, err := Hashify(item)
			if err != nil {
				return nil, err
			}
			if err := putKey(out, k, hv); err != nil {
				return nil, err
			}
		}
		return out, nil
	case map[sexp.Symbol]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			hv, err := Hashify(item)
			if err != nil {
				return nil, err
			}
			if err := putKey(out, string(k), hv); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return raw, nil
	}
}

// NormalizeKey strips a keyword marker and replaces dashes with underscores.
func NormalizeKey(key string) string {
	return strings.ReplaceAll(strings.TrimPrefix(key, ":"), "-", "_")
}

func hashifySeq(items []any) (any, error) {
	if isAssociationCandidate(items) {
		return hashifyAssociation(items)
	}
	out := make([]any, len(items))
	for i, item := range items {
		hv, err := Hashify(item)
		if err != nil {
			return nil, err
		}
		out[i] = hv
	}
	return out, nil
}

func hashifyAssociation(items []any) (any, error) {
	if len(items)%2 != 0 {
		return nil, fmt.Errorf("%w: odd length %d", ErrMalformedAssociation, len(items))
	}
	out := make(map[string]any, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		key, ok := items[i].(sexp.Symbol)
		if !ok || !key.IsKeyword() {
			return nil, fmt.Errorf("%w: element %d is %v, want keyword", ErrMalformedAssociation, i, items[i])
		}
		hv, err := Hashify(items[i+1])
		if err != nil {
			return nil, err
		}
		if err := putKey(out, string(key), hv); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func putKey(out map[string]any, key string, v any) error {
	nk := NormalizeKey(key)
	if _, dup := out[nk]; dup {
		return fmt.Errorf("%w: key %s collides on %q", ErrMalformedAssociation, key, nk)
	}
	out[nk] = v
	return nil
}

func isAssociationCandidate(items []any) bool {
	if len(items) == 0 {
		return false
	}
	key, ok := items[0].(sexp.Symbol)
	return ok && key.IsKeyword()
}
