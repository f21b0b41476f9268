package client

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/mupipe/internal/canon"
	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/danmuck/mupipe/internal/protocol/frame"
	"github.com/danmuck/mupipe/internal/sexp"
)

// TimeoutArg is the reserved argument that overrides the read timeout for
// one call. It is never sent to the worker.
const TimeoutArg = "timeout"

const statusComplete = "complete"

// Args are the keyword arguments of one call. Keys are underscore-style.
type Args map[string]any

// callContext is the state of the one call in flight.
type callContext struct {
	id      string
	command Command
	timeout time.Duration
	retries int
	frames  int
}

func (cc *callContext) streaming() bool {
	return cc.command.Policy == PolicyStream || cc.frames > 0
}

// frameSource is the buffered worker output consumed by acquireFrame.
type frameSource interface {
	Fill(ctx context.Context, timeout time.Duration) (int, error)
	Bytes() []byte
	Consume(n int)
}

// splitArgs separates the timeout override from the wire arguments.
func splitArgs(args Args, timeout time.Duration) (time.Duration, map[string]any, error) {
	wire := make(map[string]any, len(args))
	for k, v := range args {
		if strings.TrimSpace(k) != TimeoutArg {
			wire[k] = v
			continue
		}
		d, err := parseTimeout(v)
		if err != nil {
			return 0, nil, err
		}
		timeout = d
	}
	return timeout, wire, nil
}

// parseTimeout accepts a time.Duration, a number of seconds, or a duration
// string ("2s", "1.5").
func parseTimeout(v any) (time.Duration, error) {
	var d time.Duration
	switch val := v.(type) {
	case time.Duration:
		d = val
	case int:
		d = time.Duration(val) * time.Second
	case int64:
		d = time.Duration(val) * time.Second
	case float64:
		d = time.Duration(val * float64(time.Second))
	case string:
		s := strings.TrimSpace(val)
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			d = time.Duration(secs * float64(time.Second))
			break
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: timeout %q: %v", ErrInvalidArgument, val, err)
		}
		d = parsed
	default:
		return 0, fmt.Errorf("%w: timeout has type %T", ErrInvalidArgument, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: timeout must be positive", ErrInvalidArgument)
	}
	return d, nil
}

// acquireFrame parses the next frame from src, reading more output while the
// frame is short. The first read for each frame is free; every later read
// counts against the call's retry budget, and a call that exceeds maxTries
// fails with ErrIncompleteFrame. maxTries zero retries without bound.
func acquireFrame(ctx context.Context, src frameSource, cc *callContext, limits frame.Limits, maxTries int) (frame.Frame, error) {
	read := false
	for {
		f, n, err := frame.Parse(src.Bytes(), limits)
		if err == nil {
			src.Consume(n)
			cc.frames++
			return f, nil
		}
		if !errors.Is(err, frame.ErrNeedMore) {
			return frame.Frame{}, err
		}
		if read {
			if maxTries > 0 && cc.retries >= maxTries {
				return frame.Frame{}, fmt.Errorf("%w: declared %d bytes, have %d after %d retries",
					protocol.ErrIncompleteFrame, f.Length, len(src.Bytes()), cc.retries)
			}
			cc.retries++
		}
		read = true
		if _, err := src.Fill(ctx, cc.timeout); err != nil {
			return frame.Frame{}, err
		}
	}
}

func decodePayload(payload []byte) (any, error) {
	raw, err := sexp.DecodeBytes(payload)
	if err != nil {
		return nil, err
	}
	return canon.Hashify(raw)
}

// isTerminal reports whether v ends the call. Any frame carrying a status
// other than "complete" is a progress frame; a streaming command also needs
// the status to be present.
func isTerminal(policy Policy, v any) bool {
	m, ok := v.(map[string]any)
	var status any
	has := false
	if ok {
		status, has = m["status"]
	}
	if policy == PolicyStream {
		return has && status == statusComplete
	}
	return !has || status == statusComplete
}
