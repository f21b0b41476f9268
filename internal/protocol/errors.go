package protocol

import "errors"

var (
	// ErrProtocol marks a malformed frame header or an unparseable payload.
	// It is fatal for the call and never retried.
	ErrProtocol = errors.New("protocol: malformed response")

	// ErrIncompleteFrame is returned when a frame payload is still short after
	// the configured number of read attempts. The worker should be restarted
	// before further use.
	ErrIncompleteFrame = errors.New("protocol: incomplete frame")

	// ErrDeath signals a zero-byte read from the worker output.
	ErrDeath = errors.New("protocol: worker exited")

	// ErrIncompleteStream is returned when the worker dies before a streaming
	// command reports a terminal status.
	ErrIncompleteStream = errors.New("protocol: incomplete stream")

	ErrInvalidCommand  = errors.New("protocol: invalid command name")
	ErrInvalidArgument = errors.New("protocol: invalid argument")
)
