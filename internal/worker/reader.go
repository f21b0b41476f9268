package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/danmuck/mupipe/internal/protocol"
)

const DefaultBufSize = 4096

// drainWait bounds each follow-up read of a fill cycle. Bytes already in the
// pipe are returned at once; the wait only applies once it is empty.
const drainWait = time.Millisecond

// Reader accumulates worker output into an unconsumed byte buffer.
//
// Streams with read deadlines (pipes from os/exec) are read directly.
// Other streams, such as SSH channels, are read by a pump goroutine that
// keeps everything it has read available to the next Fill.
type Reader struct {
	src source
	buf []byte
}

// source fills dst from the worker stream.
type source interface {
	// fill waits up to timeout for output, then takes everything ready.
	fill(ctx context.Context, timeout time.Duration, dst []byte) ([]byte, int, error)
	// drain takes everything ready without waiting.
	drain(dst []byte) ([]byte, int)
	close()
}

type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

func NewReader(src io.Reader, bufSize int) *Reader {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	if d, ok := src.(deadlineReader); ok && d.SetReadDeadline(time.Time{}) == nil {
		return &Reader{src: &directSource{r: d, scratch: make([]byte, bufSize)}}
	}
	return &Reader{src: newPumpSource(src, bufSize)}
}

// Fill waits up to timeout for output to become available, then appends
// every byte that is immediately ready. On timeout the buffer is left
// unchanged and Fill returns 0, nil. Once the worker output is exhausted
// Fill returns an error wrapping protocol.ErrDeath; bytes that arrived
// before the end are still appended first.
func (r *Reader) Fill(ctx context.Context, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var (
		n   int
		err error
	)
	r.buf, n, err = r.src.fill(ctx, timeout, r.buf)
	return n, err
}

// Bytes returns the unconsumed buffer. It is valid until the next call to
// Fill, Consume or Discard.
func (r *Reader) Bytes() []byte { return r.buf }

// Buffered returns the number of unconsumed bytes.
func (r *Reader) Buffered() int { return len(r.buf) }

// Consume removes the first n bytes from the buffer.
func (r *Reader) Consume(n int) {
	if n >= len(r.buf) {
		r.buf = r.buf[:0]
		return
	}
	r.buf = append(r.buf[:0], r.buf[n:]...)
}

// Discard drops the buffer and any output that is already waiting.
func (r *Reader) Discard() int {
	r.buf, _ = r.src.drain(r.buf)
	n := len(r.buf)
	r.buf = r.buf[:0]
	return n
}

// Close stops reading. It does not close the underlying stream.
func (r *Reader) Close() { r.src.close() }

func deathError(cause error) error {
	if cause == nil || errors.Is(cause, io.EOF) || errors.Is(cause, os.ErrClosed) {
		return fmt.Errorf("%w: end of output", protocol.ErrDeath)
	}
	return fmt.Errorf("%w: %v", protocol.ErrDeath, cause)
}

// directSource reads a deadline-capable stream on the caller's goroutine.
type directSource struct {
	r       deadlineReader
	scratch []byte
	cause   error
	done    bool
}

func (s *directSource) fill(ctx context.Context, timeout time.Duration, dst []byte) ([]byte, int, error) {
	if s.done {
		return dst, 0, deathError(s.cause)
	}
	// Cancellation expires the deadline, which interrupts a blocked read.
	stop := context.AfterFunc(ctx, func() { _ = s.r.SetReadDeadline(time.Now()) })
	defer stop()

	dst, n, err := s.read(dst, time.Now().Add(timeout))
	if cerr := ctx.Err(); cerr != nil {
		return dst, n, cerr
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return dst, 0, nil
		}
		s.finish(err)
		if n == 0 {
			return dst, 0, deathError(s.cause)
		}
		return dst, n, nil
	}
	dst, more := s.drain(dst)
	return dst, n + more, nil
}

func (s *directSource) drain(dst []byte) ([]byte, int) {
	total := 0
	for !s.done {
		var (
			n   int
			err error
		)
		dst, n, err = s.read(dst, time.Now().Add(drainWait))
		total += n
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				s.finish(err)
			}
			break
		}
		if n == 0 {
			break
		}
	}
	return dst, total
}

func (s *directSource) read(dst []byte, deadline time.Time) ([]byte, int, error) {
	if err := s.r.SetReadDeadline(deadline); err != nil {
		return dst, 0, err
	}
	n, err := s.r.Read(s.scratch)
	return append(dst, s.scratch[:n]...), n, err
}

func (s *directSource) finish(err error) {
	s.done = true
	s.cause = err
}

func (s *directSource) close() {}
