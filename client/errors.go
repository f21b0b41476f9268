package client

import (
	"errors"
	"fmt"

	"github.com/danmuck/mupipe/internal/canon"
	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/danmuck/mupipe/internal/protocol/frame"
	"github.com/danmuck/mupipe/internal/worker"
)

var (
	ErrProtocol             = protocol.ErrProtocol
	ErrIncompleteFrame      = protocol.ErrIncompleteFrame
	ErrDeath                = protocol.ErrDeath
	ErrIncompleteStream     = protocol.ErrIncompleteStream
	ErrMalformedAssociation = canon.ErrMalformedAssociation
	ErrBadFrameHeader       = frame.ErrBadHeader
	ErrSpawnFailed          = worker.ErrSpawnFailed

	ErrUnknownCommand  = errors.New("client: unknown command")
	ErrCommandExists   = errors.New("client: command already registered")
	ErrInvalidCommand  = errors.New("client: invalid command")
	ErrInvalidArgument = errors.New("client: invalid argument")
	ErrInvalidConfig   = errors.New("client: invalid config")
	ErrEngineClosed    = errors.New("client: engine closed")
)

// RemoteError is a worker response of the form (:error CODE :message TEXT).
type RemoteError struct {
	Command string
	Code    int64
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("client: %s: worker error %d", e.Command, e.Code)
	}
	return fmt.Sprintf("client: %s: worker error %d: %s", e.Command, e.Code, e.Message)
}

func remoteErrorFrom(command string, v any) *RemoteError {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	raw, ok := m["error"]
	if !ok {
		return nil
	}
	rerr := &RemoteError{Command: command}
	switch code := raw.(type) {
	case int64:
		rerr.Code = code
	case float64:
		rerr.Code = int64(code)
	default:
		return nil
	}
	if msg, ok := m["message"].(string); ok {
		rerr.Message = msg
	}
	return rerr
}
