package sexp

import "strings"

// Symbol is a bare atom such as nil, t, running or :docid.
type Symbol string

// IsKeyword reports whether s is a tagged key (:name).
func (s Symbol) IsKeyword() bool {
	return len(s) > 1 && s[0] == ':'
}

// Name returns the symbol text without a keyword marker.
func (s Symbol) Name() string {
	return strings.TrimPrefix(string(s), ":")
}

// List is an ordered sequence of values.
type List []any

// Pair is a dotted pair (car . cdr).
type Pair struct {
	Car any
	Cdr any
}

const (
	Nil Symbol = "nil"
	T   Symbol = "t"
)
