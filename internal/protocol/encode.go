package protocol

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const commandPrefix = "cmd:"

// Arg is one key/value pair of an outbound command line.
type Arg struct {
	Key   string
	Value any
}

// EncodeCommand renders the wire line for name and args, terminated by a
// newline. Argument keys are sorted so the line is deterministic.
func EncodeCommand(name string, args map[string]any) (string, error) {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make([]Arg, 0, len(keys))
	for _, k := range keys {
		ordered = append(ordered, Arg{Key: k, Value: args[k]})
	}
	return EncodeCommandArgs(name, ordered)
}

// EncodeCommandArgs renders the wire line keeping the given argument order.
func EncodeCommandArgs(name string, args []Arg) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsFunc(name, unicode.IsSpace) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCommand, name)
	}

	var b strings.Builder
	b.WriteString(commandPrefix)
	b.WriteString(name)
	for _, arg := range args {
		key := WireKey(arg.Key)
		if key == "" || strings.ContainsFunc(key, unicode.IsSpace) || strings.Contains(key, ":") {
			return "", fmt.Errorf("%w: key %q", ErrInvalidArgument, arg.Key)
		}
		value, err := FormatValue(arg.Value)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidArgument, arg.Key, err)
		}
		b.WriteByte(' ')
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(value)
	}
	b.WriteByte('\n')
	return b.String(), nil
}

// WireKey maps an underscore-style argument key to the dash-style wire key.
func WireKey(key string) string {
	return strings.ReplaceAll(strings.TrimSpace(key), "_", "-")
}

// FormatValue renders one argument value. Strings that are empty or contain
// whitespace or quotes are double-quoted with backslash escapes.
func FormatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "nil", nil
	case string:
		return quoteIfNeeded(val), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(val), 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return "", fmt.Errorf("non-finite number %v", val)
		}
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case time.Duration:
		return strconv.FormatInt(val.Milliseconds(), 10), nil
	case []string:
		return quoteIfNeeded(strings.Join(val, ",")), nil
	case fmt.Stringer:
		return quoteIfNeeded(val.String()), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func quoteIfNeeded(s string) string {
	if s != "" && !strings.ContainsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"'
	}) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}
