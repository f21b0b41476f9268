// Package sexp decodes the symbolic-expression literals carried in worker
// frames.
//
// Decoded values are one of:
//   - Symbol (keywords keep their leading colon)
//   - string
//   - int64 or float64
//   - List
//   - Pair, for dotted pairs
//
// Character literals (?a) decode to int64 code points, quoted forms ('x)
// decode to (quote x), and vectors ([a b]) decode to List.
package sexp
