package worker

import (
	"context"
	"io"
	"sync"
	"time"
)

// pumpSource reads a stream without deadlines on its own goroutine. Every
// byte read is kept in pending until a fill takes it, so one fill returns
// all output read so far.
type pumpSource struct {
	notify chan struct{}

	mu      sync.Mutex
	pending []byte
	done    bool
	closed  bool
	cause   error
}

func newPumpSource(src io.Reader, bufSize int) *pumpSource {
	p := &pumpSource{notify: make(chan struct{}, 1)}
	go p.run(src, bufSize)
	return p
}

func (p *pumpSource) run(src io.Reader, bufSize int) {
	b := make([]byte, bufSize)
	for {
		n, err := src.Read(b)
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.pending = append(p.pending, b[:n]...)
		if err != nil {
			p.done = true
			p.cause = err
		}
		p.mu.Unlock()

		select {
		case p.notify <- struct{}{}:
		default:
		}
		if err != nil {
			return
		}
	}
}

// take moves pending bytes to dst. ok reports whether fill can return:
// bytes were moved or the stream has ended.
func (p *pumpSource) take(dst []byte) (out []byte, n int, ok bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n = len(p.pending); n > 0 {
		dst = append(dst, p.pending...)
		p.pending = p.pending[:0]
		return dst, n, true, nil
	}
	if p.done {
		return dst, 0, true, deathError(p.cause)
	}
	return dst, 0, false, nil
}

func (p *pumpSource) fill(ctx context.Context, timeout time.Duration, dst []byte) ([]byte, int, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		out, n, ok, err := p.take(dst)
		if ok {
			return out, n, err
		}
		select {
		case <-p.notify:
		case <-timer.C:
			return dst, 0, nil
		case <-ctx.Done():
			return dst, 0, ctx.Err()
		}
	}
}

func (p *pumpSource) drain(dst []byte) ([]byte, int) {
	out, n, _, _ := p.take(dst)
	return out, n
}

func (p *pumpSource) close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.pending = nil
}
