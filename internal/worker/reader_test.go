package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/danmuck/mupipe/internal/protocol/frame"
)

func TestReaderFillTimeoutLeavesBufferUnchanged(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewReader(pr, 16)
	defer r.Close()

	n, err := r.Fill(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if n != 0 || r.Buffered() != 0 {
		t.Fatalf("expected empty buffer, n=%d buffered=%d", n, r.Buffered())
	}
}

func TestReaderFillDrainsReadyChunks(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, 4)
	defer r.Close()

	go func() {
		pw.Write([]byte("abcdefghij"))
	}()
	got := ""
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 10 && time.Now().Before(deadline) {
		if _, err := r.Fill(context.Background(), 100*time.Millisecond); err != nil {
			t.Fatalf("fill: %v", err)
		}
		got = string(r.Bytes())
	}
	if got != "abcdefghij" {
		t.Fatalf("unexpected buffer: %q", got)
	}
	pw.Close()
}

func TestReaderReportsDeathAfterData(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, 64)
	defer r.Close()

	go func() {
		pw.Write([]byte("last words"))
		pw.Close()
	}()
	var err error
	for i := 0; i < 10 && err == nil; i++ {
		_, err = r.Fill(context.Background(), 200*time.Millisecond)
	}
	if !errors.Is(err, protocol.ErrDeath) {
		t.Fatalf("expected ErrDeath, got %v", err)
	}
	if string(r.Bytes()) != "last words" {
		t.Fatalf("data before exit lost: %q", r.Bytes())
	}
	if _, err := r.Fill(context.Background(), time.Millisecond); !errors.Is(err, protocol.ErrDeath) {
		t.Fatalf("expected ErrDeath to persist, got %v", err)
	}
}

func TestReaderConsumeAndDiscard(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, 64)
	defer r.Close()

	go pw.Write([]byte("0123456789"))
	if _, err := r.Fill(context.Background(), time.Second); err != nil {
		t.Fatalf("fill: %v", err)
	}
	r.Consume(4)
	if string(r.Bytes()) != "456789" {
		t.Fatalf("unexpected buffer after consume: %q", r.Bytes())
	}
	r.Consume(100)
	if r.Buffered() != 0 {
		t.Fatalf("expected empty buffer")
	}

	go pw.Write([]byte("stale"))
	if _, err := r.Fill(context.Background(), time.Second); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if n := r.Discard(); n != 5 {
		t.Fatalf("expected 5 discarded bytes, got %d", n)
	}
	if r.Buffered() != 0 {
		t.Fatalf("expected empty buffer after discard")
	}
	pw.Close()
}

func TestReaderFillHonorsContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	r := NewReader(pr, 16)
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Fill(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func newPipeReader(t *testing.T, bufSize int) (*Reader, *os.File) {
	t.Helper()
	pr, pw, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		pw.Close()
		pr.Close()
	})
	r := NewReader(pr, bufSize)
	if _, ok := r.src.(*directSource); !ok {
		t.Fatalf("os.Pipe should be read directly, got %T", r.src)
	}
	return r, pw
}

func TestReaderOneFillTakesLargeReadyFrame(t *testing.T) {
	r, pw := newPipeReader(t, 4096)
	payload := bytes.Repeat([]byte("x"), 40*1024)
	wire := frame.Encode(payload)
	if _, err := pw.Write(wire); err != nil {
		t.Fatalf("write: %v", err)
	}

	n, err := r.Fill(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if n != len(wire) || !bytes.Equal(r.Bytes(), wire) {
		t.Fatalf("one fill returned %d of %d ready bytes", n, len(wire))
	}
}

func TestReaderDirectTimeoutAndDeath(t *testing.T) {
	r, pw := newPipeReader(t, 64)

	start := time.Now()
	n, err := r.Fill(context.Background(), 20*time.Millisecond)
	if err != nil || n != 0 {
		t.Fatalf("expected empty timeout, got n=%d err=%v", n, err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not honored: %v", time.Since(start))
	}

	pw.Write([]byte("bye"))
	pw.Close()
	var ferr error
	for i := 0; i < 5 && ferr == nil; i++ {
		_, ferr = r.Fill(context.Background(), 200*time.Millisecond)
	}
	if !errors.Is(ferr, protocol.ErrDeath) {
		t.Fatalf("expected ErrDeath, got %v", ferr)
	}
	if string(r.Bytes()) != "bye" {
		t.Fatalf("data before exit lost: %q", r.Bytes())
	}
}

func TestReaderDirectCancelInterruptsWait(t *testing.T) {
	r, _ := newPipeReader(t, 64)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	start := time.Now()
	_, err := r.Fill(ctx, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("cancel did not interrupt the read")
	}
}

func TestReaderDiscardDrainsPipe(t *testing.T) {
	r, pw := newPipeReader(t, 16)
	stale := bytes.Repeat([]byte("s"), 1000)
	pw.Write(stale)

	if n := r.Discard(); n != len(stale) {
		t.Fatalf("discarded %d of %d stale bytes", n, len(stale))
	}
	pw.Write([]byte("fresh"))
	if _, err := r.Fill(context.Background(), time.Second); err != nil {
		t.Fatalf("fill: %v", err)
	}
	if string(r.Bytes()) != "fresh" {
		t.Fatalf("stale bytes survived discard: %q", r.Bytes())
	}
}

func TestReaderPumpFillTakesEverythingRead(t *testing.T) {
	pr, pw := io.Pipe()
	r := NewReader(pr, 4096)
	defer r.Close()
	pump, ok := r.src.(*pumpSource)
	if !ok {
		t.Fatalf("io.Pipe should be pumped, got %T", r.src)
	}

	wire := frame.Encode(bytes.Repeat([]byte("y"), 40*1024))
	go func() {
		pw.Write(wire)
		pw.Close()
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		pump.mu.Lock()
		done := pump.done
		pump.mu.Unlock()
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pump did not reach end of stream")
		}
		time.Sleep(time.Millisecond)
	}

	n, err := r.Fill(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("fill: %v", err)
	}
	if n != len(wire) {
		t.Fatalf("one fill returned %d of %d bytes", n, len(wire))
	}
	if _, err := r.Fill(context.Background(), time.Second); !errors.Is(err, protocol.ErrDeath) {
		t.Fatalf("expected ErrDeath after data, got %v", err)
	}
}
