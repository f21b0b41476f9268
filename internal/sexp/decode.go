package sexp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/danmuck/mupipe/internal/protocol"
)

const maxDepth = 512

// ErrSyntax is the parent of every decode failure.
var ErrSyntax = fmt.Errorf("%w: sexp syntax", protocol.ErrProtocol)

// SyntaxError locates a decode failure in the input.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sexp: %s at offset %d", e.Msg, e.Offset)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// Decode parses exactly one expression from text. Surrounding whitespace and
// comments are allowed; anything else after the expression is an error.
func Decode(text string) (any, error) {
	d := decoder{src: text}
	d.skipSpace()
	if d.eof() {
		return nil, d.fail("empty input")
	}
	v, err := d.value(0)
	if err != nil {
		return nil, err
	}
	d.skipSpace()
	if !d.eof() {
		return nil, d.fail("trailing data")
	}
	return v, nil
}

// DecodeBytes is Decode for a frame payload.
func DecodeBytes(b []byte) (any, error) {
	return Decode(string(b))
}

type decoder struct {
	src string
	pos int
}

func (d *decoder) eof() bool { return d.pos >= len(d.src) }

func (d *decoder) fail(msg string) error {
	return &SyntaxError{Offset: d.pos, Msg: msg}
}

func (d *decoder) skipSpace() {
	for !d.eof() {
		c := d.src[d.pos]
		switch {
		case c == ';':
			for !d.eof() && d.src[d.pos] != '\n' {
				d.pos++
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			d.pos++
		default:
			return
		}
	}
}

func (d *decoder) value(depth int) (any, error) {
	if depth > maxDepth {
		return nil, d.fail("nesting too deep")
	}
	d.skipSpace()
	if d.eof() {
		return nil, d.fail("unexpected end of input")
	}
	switch c := d.src[d.pos]; c {
	case '(':
		d.pos++
		return d.list(')', depth)
	case '[':
		d.pos++
		return d.list(']', depth)
	case ')', ']':
		return nil, d.fail(fmt.Sprintf("unexpected %q", c))
	case '"':
		d.pos++
		return d.str()
	case '?':
		d.pos++
		return d.char()
	case '\'':
		d.pos++
		inner, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		return List{Symbol("quote"), inner}, nil
	default:
		return d.atom()
	}
}

func (d *decoder) list(closer byte, depth int) (any, error) {
	out := List{}
	for {
		d.skipSpace()
		if d.eof() {
			return nil, d.fail("unterminated list")
		}
		if d.src[d.pos] == closer {
			d.pos++
			if len(out) == 0 && closer == ')' {
				return Nil, nil
			}
			return out, nil
		}
		if d.atDot() {
			if closer != ')' || len(out) != 1 {
				return nil, d.fail("unsupported dotted form")
			}
			d.pos++
			cdr, err := d.value(depth + 1)
			if err != nil {
				return nil, err
			}
			d.skipSpace()
			if d.eof() || d.src[d.pos] != ')' {
				return nil, d.fail("expected ) after dotted pair")
			}
			d.pos++
			return Pair{Car: out[0], Cdr: cdr}, nil
		}
		v, err := d.value(depth + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// atDot reports a lone "." token.
func (d *decoder) atDot() bool {
	if d.src[d.pos] != '.' {
		return false
	}
	next := d.pos + 1
	return next >= len(d.src) || isDelimiter(d.src[next])
}

func (d *decoder) str() (any, error) {
	var b strings.Builder
	for {
		if d.eof() {
			return nil, d.fail("unterminated string")
		}
		c := d.src[d.pos]
		switch c {
		case '"':
			d.pos++
			return b.String(), nil
		case '\\':
			d.pos++
			if d.eof() {
				return nil, d.fail("unterminated escape")
			}
			e := d.src[d.pos]
			d.pos++
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'e':
				b.WriteByte(0x1b)
			case '\n':
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
			d.pos++
		}
	}
}

func (d *decoder) char() (any, error) {
	if d.eof() {
		return nil, d.fail("empty character literal")
	}
	if d.src[d.pos] == '\\' {
		d.pos++
		if d.eof() {
			return nil, d.fail("empty character escape")
		}
		e := d.src[d.pos]
		d.pos++
		switch e {
		case 'n':
			return int64('\n'), nil
		case 't':
			return int64('\t'), nil
		case 's':
			return int64(' '), nil
		default:
			return int64(e), nil
		}
	}
	r, size := utf8.DecodeRuneInString(d.src[d.pos:])
	if r == utf8.RuneError && size <= 1 {
		return nil, d.fail("invalid character literal")
	}
	d.pos += size
	return int64(r), nil
}

func (d *decoder) atom() (any, error) {
	start := d.pos
	var b strings.Builder
	escaped := false
	for !d.eof() {
		c := d.src[d.pos]
		if c == '\\' {
			if d.pos+1 >= len(d.src) {
				return nil, d.fail("dangling escape in symbol")
			}
			b.WriteByte(d.src[d.pos+1])
			d.pos += 2
			escaped = true
			continue
		}
		if isDelimiter(c) {
			break
		}
		b.WriteByte(c)
		d.pos++
	}
	tok := b.String()
	if tok == "" {
		return nil, &SyntaxError{Offset: start, Msg: "empty atom"}
	}
	if !escaped && looksNumeric(tok) {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return n, nil
		}
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return f, nil
		}
	}
	return Symbol(tok), nil
}

func looksNumeric(tok string) bool {
	i := 0
	if tok[0] == '+' || tok[0] == '-' {
		i++
	}
	if i < len(tok) && tok[i] == '.' {
		i++
	}
	return i < len(tok) && tok[i] >= '0' && tok[i] <= '9'
}

func isDelimiter(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v', '(', ')', '[', ']', '"', ';', '\'':
		return true
	}
	return false
}
