package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/danmuck/mupipe/internal/protocol/frame"
	"github.com/danmuck/mupipe/internal/worker"
)

// scriptedSource hands out one scripted chunk per Fill and counts reads.
type scriptedSource struct {
	chunks [][]byte
	buf    []byte
	fills  int
	end    bool
}

func (s *scriptedSource) Fill(context.Context, time.Duration) (int, error) {
	s.fills++
	if len(s.chunks) == 0 {
		if s.end {
			return 0, fmt.Errorf("%w: end of output", protocol.ErrDeath)
		}
		return 0, nil
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	s.buf = append(s.buf, c...)
	return len(c), nil
}

func (s *scriptedSource) Bytes() []byte { return s.buf }

func (s *scriptedSource) Consume(n int) { s.buf = s.buf[n:] }

func newCall(policy Policy) *callContext {
	return &callContext{command: Command{Name: "t", Wire: "t", Policy: policy}, timeout: time.Millisecond}
}

func TestAcquireFrameStopsAfterMaxTries(t *testing.T) {
	src := &scriptedSource{chunks: [][]byte{{frame.CookiePre, '1', '0', frame.CookiePost, '(', ':', 'a'}}}
	cc := newCall(PolicySingle)

	_, err := acquireFrame(context.Background(), src, cc, frame.DefaultLimits(), 2)
	if !errors.Is(err, protocol.ErrIncompleteFrame) {
		t.Fatalf("expected ErrIncompleteFrame, got %v", err)
	}
	// one free read plus exactly two retries
	if src.fills != 3 || cc.retries != 2 {
		t.Fatalf("fills=%d retries=%d", src.fills, cc.retries)
	}
}

func TestAcquireFrameAssemblesSplitFrame(t *testing.T) {
	full := frame.Encode([]byte("(:pong t)"))
	src := &scriptedSource{chunks: [][]byte{full[:2], nil, full[2:7], full[7:]}}
	cc := newCall(PolicySingle)

	f, err := acquireFrame(context.Background(), src, cc, frame.DefaultLimits(), 3)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if string(f.Payload) != "(:pong t)" {
		t.Fatalf("unexpected payload %q", f.Payload)
	}
	if cc.frames != 1 || cc.retries != 3 || len(src.Bytes()) != 0 {
		t.Fatalf("frames=%d retries=%d left=%d", cc.frames, cc.retries, len(src.Bytes()))
	}
}

func TestAcquireFrameRetryBudgetSpansTheCall(t *testing.T) {
	a := frame.Encode([]byte("(:a 1)"))
	b := frame.Encode([]byte("(:b 2)"))

	src := &scriptedSource{chunks: [][]byte{a[:3], a[3:], b[:3], b[3:]}}
	cc := newCall(PolicyStream)
	if _, err := acquireFrame(context.Background(), src, cc, frame.DefaultLimits(), 1); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	_, err := acquireFrame(context.Background(), src, cc, frame.DefaultLimits(), 1)
	if !errors.Is(err, protocol.ErrIncompleteFrame) {
		t.Fatalf("expected the second short frame to exhaust the budget, got %v", err)
	}
	if cc.frames != 1 || cc.retries != 1 {
		t.Fatalf("frames=%d retries=%d", cc.frames, cc.retries)
	}

	src = &scriptedSource{chunks: [][]byte{a[:3], a[3:], b[:3], b[3:]}}
	cc = newCall(PolicyStream)
	for i := 0; i < 2; i++ {
		if _, err := acquireFrame(context.Background(), src, cc, frame.DefaultLimits(), 2); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if cc.frames != 2 || cc.retries != 2 {
		t.Fatalf("frames=%d retries=%d", cc.frames, cc.retries)
	}
}

func TestAcquireFrameFromPipeWithLargeFrame(t *testing.T) {
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	defer pr.Close()
	defer pw.Close()
	payload := "(:body \"" + strings.Repeat("z", 40000) + "\")"
	if _, err := pw.Write(frame.Encode([]byte(payload))); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := worker.NewReader(pr, 4096)
	defer r.Close()
	cc := newCall(PolicySingle)
	cc.timeout = time.Second
	f, err := acquireFrame(context.Background(), r, cc, frame.DefaultLimits(), 2)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if string(f.Payload) != payload || cc.retries != 0 {
		t.Fatalf("payload %d bytes, retries %d", len(f.Payload), cc.retries)
	}
}

func TestAcquireFrameUnboundedWhenMaxTriesZero(t *testing.T) {
	full := frame.Encode([]byte("(:ok t)"))
	chunks := make([][]byte, 0, 40)
	chunks = append(chunks, full[:1])
	for i := 0; i < 30; i++ {
		chunks = append(chunks, nil)
	}
	chunks = append(chunks, full[1:])
	src := &scriptedSource{chunks: chunks}

	if _, err := acquireFrame(context.Background(), src, newCall(PolicySingle), frame.DefaultLimits(), 0); err != nil {
		t.Fatalf("acquire: %v", err)
	}
}

func TestAcquireFrameReportsDeath(t *testing.T) {
	src := &scriptedSource{end: true}
	_, err := acquireFrame(context.Background(), src, newCall(PolicySingle), frame.DefaultLimits(), 0)
	if !errors.Is(err, protocol.ErrDeath) {
		t.Fatalf("expected ErrDeath, got %v", err)
	}
}

func TestAcquireFrameUsesBufferedFrameWithoutReading(t *testing.T) {
	src := &scriptedSource{buf: frame.Encode([]byte("(:a 1)"))}
	if _, err := acquireFrame(context.Background(), src, newCall(PolicySingle), frame.DefaultLimits(), 1); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if src.fills != 0 {
		t.Fatalf("buffered frame triggered %d reads", src.fills)
	}
}

func TestParseTimeout(t *testing.T) {
	cases := []struct {
		in   any
		want time.Duration
	}{
		{2 * time.Second, 2 * time.Second},
		{3, 3 * time.Second},
		{int64(1), time.Second},
		{0.25, 250 * time.Millisecond},
		{"1.5", 1500 * time.Millisecond},
		{"750ms", 750 * time.Millisecond},
	}
	for _, tc := range cases {
		got, err := parseTimeout(tc.in)
		if err != nil {
			t.Fatalf("parseTimeout(%v): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseTimeout(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
	for _, bad := range []any{0, -1, "later", true, nil} {
		if _, err := parseTimeout(bad); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("parseTimeout(%v): expected ErrInvalidArgument, got %v", bad, err)
		}
	}
}

func TestSplitArgsRemovesTimeout(t *testing.T) {
	timeout, wire, err := splitArgs(Args{"timeout": "2s", "query": "x"}, time.Second)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	if timeout != 2*time.Second {
		t.Fatalf("timeout = %v", timeout)
	}
	if _, ok := wire["timeout"]; ok || wire["query"] != "x" || len(wire) != 1 {
		t.Fatalf("unexpected wire args: %v", wire)
	}

	timeout, wire, err = splitArgs(nil, time.Second)
	if err != nil || timeout != time.Second || len(wire) != 0 {
		t.Fatalf("nil args: %v %v %v", timeout, wire, err)
	}
}

func TestIsTerminal(t *testing.T) {
	running := map[string]any{"status": "running"}
	complete := map[string]any{"status": "complete"}
	plain := map[string]any{"pong": "mu"}

	cases := []struct {
		policy Policy
		v      any
		want   bool
	}{
		{PolicySingle, plain, true},
		{PolicySingle, complete, true},
		{PolicySingle, running, false},
		{PolicySingle, []any{int64(1)}, true},
		{PolicySingle, nil, true},
		{PolicyStream, plain, false},
		{PolicyStream, running, false},
		{PolicyStream, complete, true},
	}
	for _, tc := range cases {
		if got := isTerminal(tc.policy, tc.v); got != tc.want {
			t.Fatalf("isTerminal(%v, %v) = %v, want %v", tc.policy, tc.v, got, tc.want)
		}
	}
}

func TestRemoteErrorFrom(t *testing.T) {
	rerr := remoteErrorFrom("find", map[string]any{"error": int64(2), "message": "bad query"})
	if rerr == nil || rerr.Code != 2 || rerr.Message != "bad query" || rerr.Command != "find" {
		t.Fatalf("unexpected remote error: %+v", rerr)
	}
	if rerr.Error() != "client: find: worker error 2: bad query" {
		t.Fatalf("unexpected message %q", rerr.Error())
	}
	if remoteErrorFrom("find", map[string]any{"error": "text"}) != nil {
		t.Fatalf("non-numeric error field treated as remote error")
	}
	if remoteErrorFrom("find", []any{"error"}) != nil {
		t.Fatalf("list treated as remote error")
	}
}

func TestOutcomeOf(t *testing.T) {
	cases := map[string]error{
		"ok":              nil,
		"remote_error":    &RemoteError{Code: 1},
		"incomplete":      fmt.Errorf("%w: %w", protocol.ErrIncompleteStream, protocol.ErrDeath),
		"worker_died":     fmt.Errorf("wrap: %w", worker.ErrSpawnFailed),
		"protocol_error":  ErrMalformedAssociation,
		"canceled":        context.Canceled,
		"invalid_request": ErrInvalidArgument,
		"failed":          errors.New("other"),
	}
	for want, err := range cases {
		if got := outcomeOf(err); got != want {
			t.Fatalf("outcomeOf(%v) = %q, want %q", err, got, want)
		}
	}
}
