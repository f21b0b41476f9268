package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/mupipe/internal/observability"
	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/danmuck/mupipe/internal/protocol/frame"
	"github.com/danmuck/mupipe/internal/worker"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Engine is the command dispatcher for one worker.
type Engine struct {
	cfg      Config
	timeout  time.Duration
	registry *Registry
	sup      *worker.Supervisor
	limits   frame.Limits
	logger   zerolog.Logger
	closed   bool
}

// New validates cfg and launches the worker.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("component", "engine").Logger()

	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}
	launcher := cfg.Launcher
	if launcher == nil {
		launcher = worker.LocalLauncher{
			Stderr: logger.With().Str("stream", "stderr").Logger(),
		}
	}

	sup, err := worker.NewSupervisor(launcher, cfg.spec(), cfg.options(logger, observability.RecordRestart))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	e := &Engine{
		cfg:      cfg,
		timeout:  cfg.Timeout,
		registry: registry,
		sup:      sup,
		limits:   frame.Limits{MaxPayloadBytes: cfg.MaxFrameBytes},
		logger:   logger,
	}
	if err := sup.Start(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

// Timeout returns the engine's read timeout.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// SetTimeout changes the engine's read timeout for later calls.
func (e *Engine) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidArgument)
	}
	e.timeout = d
	return nil
}

func (e *Engine) State() State  { return e.sup.State() }
func (e *Engine) PID() int      { return e.sup.PID() }
func (e *Engine) Restarts() int { return e.sup.Restarts() }

// Register adds a command to the engine's registry.
func (e *Engine) Register(cmd Command) error {
	return e.registry.Register(cmd)
}

// Commands lists the registered commands.
func (e *Engine) Commands() []Command {
	return e.registry.List()
}

// Call runs the named command and returns its canonical result. The
// reserved argument TimeoutArg overrides the read timeout for this call.
func (e *Engine) Call(ctx context.Context, name string, args Args) (any, error) {
	if e.closed {
		return nil, ErrEngineClosed
	}
	cmd, ok := e.registry.Resolve(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	timeout, wire, err := splitArgs(args, e.timeout)
	if err != nil {
		observability.RecordCall(cmd.Name, observability.OutcomeInvalidRequest, 0)
		return nil, err
	}
	cc := &callContext{id: uuid.NewString(), command: cmd, timeout: timeout}

	start := time.Now()
	v, err := e.run(ctx, cc, wire)
	elapsed := time.Since(start)
	outcome := outcomeOf(err)
	observability.RecordCall(cmd.Name, outcome, elapsed)

	event := e.logger.Debug()
	if err != nil {
		event = e.logger.Warn().Err(err)
	}
	event.
		Str("call_id", cc.id).
		Str("command", cmd.Name).
		Str("outcome", outcome).
		Int("frames", cc.frames).
		Int("retries", cc.retries).
		Dur("duration", elapsed).
		Msg("call")
	return v, err
}

func (e *Engine) run(ctx context.Context, cc *callContext, wire map[string]any) (any, error) {
	line, err := protocol.EncodeCommand(cc.command.Wire, wire)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}
	if r := e.sup.Reader(); r != nil {
		if n := r.Discard(); n > 0 {
			e.logger.Debug().Str("call_id", cc.id).Int("bytes", n).Msg("discarded stale output")
		}
	}
	if err := e.sup.Send(ctx, line); err != nil {
		return nil, err
	}

	for {
		f, err := acquireFrame(ctx, e.sup.Reader(), cc, e.limits, e.cfg.MaxTries)
		if err != nil {
			return nil, e.fail(ctx, cc, err)
		}
		observability.RecordFrame(cc.command.Name)
		v, err := decodePayload(f.Payload)
		if err != nil {
			return nil, err
		}
		if rerr := remoteErrorFrom(cc.command.Name, v); rerr != nil {
			return nil, rerr
		}
		if isTerminal(cc.command.Policy, v) {
			return v, nil
		}
		e.progress(cc, v)
	}
}

func (e *Engine) progress(cc *callContext, v any) {
	m, _ := v.(map[string]any)
	e.logger.Debug().
		Str("call_id", cc.id).
		Str("command", cc.command.Name).
		Interface("frame", v).
		Msg("progress")
	if e.cfg.Progress != nil && m != nil {
		e.cfg.Progress(cc.command.Name, m)
	}
}

// fail relaunches the worker after a death and shapes the call's error.
func (e *Engine) fail(ctx context.Context, cc *callContext, err error) error {
	if !errors.Is(err, protocol.ErrDeath) {
		return err
	}
	herr := e.sup.HandleDeath(ctx, err)
	if cc.streaming() {
		err = fmt.Errorf("%w after %d frames: %w", protocol.ErrIncompleteStream, cc.frames, err)
	}
	if herr != nil {
		return errors.Join(err, herr)
	}
	return err
}

// Restart stops the current worker and launches a fresh one. Use it after
// ErrIncompleteFrame.
func (e *Engine) Restart(ctx context.Context) error {
	if e.closed {
		return ErrEngineClosed
	}
	if err := e.sup.Finish(ctx); err != nil {
		e.logger.Warn().Err(err).Msg("finish before restart")
	}
	return e.sup.Start(ctx)
}

// Finish shuts the worker down and closes the engine. It is safe to call
// more than once.
func (e *Engine) Finish(ctx context.Context) error {
	e.closed = true
	return e.sup.Finish(ctx)
}

func outcomeOf(err error) string {
	var rerr *RemoteError
	switch {
	case err == nil:
		return observability.OutcomeOK
	case errors.As(err, &rerr):
		return observability.OutcomeRemoteError
	case errors.Is(err, protocol.ErrIncompleteStream), errors.Is(err, protocol.ErrIncompleteFrame):
		return observability.OutcomeIncomplete
	case errors.Is(err, protocol.ErrDeath), errors.Is(err, worker.ErrSpawnFailed):
		return observability.OutcomeWorkerDied
	case errors.Is(err, protocol.ErrProtocol):
		return observability.OutcomeProtocolError
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return observability.OutcomeCanceled
	case errors.Is(err, ErrInvalidArgument):
		return observability.OutcomeInvalidRequest
	default:
		return observability.OutcomeFailed
	}
}
