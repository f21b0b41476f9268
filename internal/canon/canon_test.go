package canon

import (
	"errors"
	"reflect"
	"testing"

	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/danmuck/mupipe/internal/protocol/frame"
	"github.com/danmuck/mupipe/internal/sexp"
)

func TestHashifyScalars(t *testing.T) {
	cases := []struct {
		in   any
		want any
	}{
		{in: sexp.Nil, want: nil},
		{in: sexp.T, want: true},
		{in: sexp.Symbol("running"), want: "running"},
		{in: sexp.Symbol(":seen"), want: ":seen"},
		{in: int64(5), want: int64(5)},
		{in: 0.25, want: 0.25},
		{in: "x-y", want: "x-y"},
		{in: nil, want: nil},
	}
	for _, tc := range cases {
		got, err := Hashify(tc.in)
		if err != nil {
			t.Fatalf("hashify %#v: %v", tc.in, err)
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("hashify %#v: got=%#v want=%#v", tc.in, got, tc.want)
		}
	}
}

func TestHashifyAssociationList(t *testing.T) {
	raw := sexp.List{sexp.Symbol(":a"), int64(1), sexp.Symbol(":b"), sexp.Nil}
	got, err := Hashify(raw)
	if err != nil {
		t.Fatalf("hashify: %v", err)
	}
	want := map[string]any{"a": int64(1), "b": nil}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v want=%#v", got, want)
	}
}

func TestHashifyRejectsMalformedAssociation(t *testing.T) {
	cases := []sexp.List{
		{sexp.Symbol(":a"), int64(1), sexp.Symbol(":b"), sexp.Nil, "c-d", int64(2)},
		{sexp.Symbol(":a"), int64(1), sexp.Symbol(":b")},
		{sexp.Symbol(":a"), int64(1), sexp.Symbol("b"), int64(2)},
	}
	for _, raw := range cases {
		_, err := Hashify(raw)
		if !errors.Is(err, ErrMalformedAssociation) {
			t.Fatalf("hashify %#v: expected ErrMalformedAssociation, got %v", raw, err)
		}
		if !errors.Is(err, protocol.ErrProtocol) {
			t.Fatalf("hashify %#v: expected ErrProtocol in chain", raw)
		}
	}
}

func TestHashifyNormalizesKeysAndNests(t *testing.T) {
	raw, err := sexp.Decode(`(:docid 7 :thread-info (:root-level 0 :first-child t)
		:from ((:name "Alice" :email "a@x.org")) :flags (seen replied)
		:contact ("Bob" . "b@x.org") :empty ())`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, err := Hashify(raw)
	if err != nil {
		t.Fatalf("hashify: %v", err)
	}
	want := map[string]any{
		"docid":       int64(7),
		"thread_info": map[string]any{"root_level": int64(0), "first_child": true},
		"from":        []any{map[string]any{"name": "Alice", "email": "a@x.org"}},
		"flags":       []any{"seen", "replied"},
		"contact":     []any{"Bob", "b@x.org"},
		"empty":       nil,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected value:\n got=%#v\nwant=%#v", got, want)
	}
}

func TestHashifyRejectsCollidingKeys(t *testing.T) {
	raw, err := sexp.Decode(`(:a-b 1 :a_b 2)`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := Hashify(raw); !errors.Is(err, ErrMalformedAssociation) {
		t.Fatalf("expected ErrMalformedAssociation, got %v", err)
	}

	mapped := map[string]any{":max-num": int64(1), "max_num": int64(2)}
	if _, err := Hashify(mapped); !errors.Is(err, ErrMalformedAssociation) {
		t.Fatalf("mapping input: expected ErrMalformedAssociation, got %v", err)
	}
}

func TestHashifyMappingInput(t *testing.T) {
	raw := map[string]any{
		":max-num": int64(3),
		"nested":   map[sexp.Symbol]any{":a-b": sexp.T},
	}
	got, err := Hashify(raw)
	if err != nil {
		t.Fatalf("hashify: %v", err)
	}
	want := map[string]any{
		"max_num": int64(3),
		"nested":  map[string]any{"a_b": true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v want=%#v", got, want)
	}
}

func TestHashifyDetectsMappingAtAnyDepth(t *testing.T) {
	raw := sexp.List{sexp.List{sexp.List{sexp.Symbol(":k"), "v"}}}
	got, err := Hashify(raw)
	if err != nil {
		t.Fatalf("hashify: %v", err)
	}
	want := []any{[]any{map[string]any{"k": "v"}}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got=%#v want=%#v", got, want)
	}
}

func TestFramedPayloadToCanonicalValue(t *testing.T) {
	buf := append([]byte{frame.CookiePre, '6', frame.CookiePost}, []byte("(:a 1)\n")...)
	f, _, err := frame.Parse(buf, frame.DefaultLimits())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	raw, err := sexp.DecodeBytes(f.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(raw, sexp.List{sexp.Symbol(":a"), int64(1)}) {
		t.Fatalf("unexpected raw value: %#v", raw)
	}
	got, err := Hashify(raw)
	if err != nil {
		t.Fatalf("hashify: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"a": int64(1)}) {
		t.Fatalf("unexpected canonical value: %#v", got)
	}
}

func TestCanonicalValuesSurviveEncodeDecode(t *testing.T) {
	inputs := []string{
		`(:docid 1 :subject "hi \"there\"" :flags (seen) :size 1024 :score 0.5 :priority nil)`,
		`(:info index :status "complete" :processed 120 :updated 4 :cleaned-up 0)`,
		`((:name "A") (:name "B" :email nil))`,
		`(1 2.5 "three" t nil)`,
		`(:found 0)`,
		`"bare string"`,
		`42`,
		`(:pair ("x" . 2))`,
		`(:empty () :list [])`,
	}
	for _, in := range inputs {
		raw, err := sexp.Decode(in)
		if err != nil {
			t.Fatalf("decode %s: %v", in, err)
		}
		v, err := Hashify(raw)
		if err != nil {
			t.Fatalf("hashify %s: %v", in, err)
		}
		text, err := sexp.Encode(v)
		if err != nil {
			t.Fatalf("encode %s: %v", in, err)
		}
		raw2, err := sexp.Decode(text)
		if err != nil {
			t.Fatalf("re-decode %s: %v", text, err)
		}
		v2, err := Hashify(raw2)
		if err != nil {
			t.Fatalf("re-hashify %s: %v", text, err)
		}
		if !reflect.DeepEqual(v, v2) {
			t.Fatalf("round trip mismatch for %s:\n first=%#v\nsecond=%#v", in, v, v2)
		}
	}
}
