package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"time"

	"github.com/danmuck/mupipe/internal/protocol"
	"github.com/rs/zerolog"
)

const (
	DefaultReadTimeout      = 500 * time.Millisecond
	DefaultShutdownGrace    = 5 * time.Second
	DefaultMaxSpawnAttempts = 5

	// QuitLine asks the worker to exit.
	QuitLine = "cmd:quit\n"
)

var (
	ErrNotRunning   = errors.New("worker: not running")
	ErrSpawnFailed  = errors.New("worker: spawn failed")
	ErrShuttingDown = errors.New("worker: shutdown in progress")
)

// Options tune a Supervisor.
type Options struct {
	// ReadTimeout bounds the startup banner read and each drain step of Finish.
	ReadTimeout      time.Duration
	BufSize          int
	ShutdownGrace    time.Duration
	MaxSpawnAttempts int
	Backoff          BackoffConfig
	Logger           zerolog.Logger
	// OnRestart runs after each relaunch that follows an unexpected exit.
	OnRestart func()
}

func DefaultOptions() Options {
	return Options{
		ReadTimeout:      DefaultReadTimeout,
		BufSize:          DefaultBufSize,
		ShutdownGrace:    DefaultShutdownGrace,
		MaxSpawnAttempts: DefaultMaxSpawnAttempts,
		Backoff:          DefaultBackoff(),
		Logger:           zerolog.Nop(),
	}
}

// Supervisor owns one worker process at a time together with its output
// buffer, and relaunches the worker when it exits unexpectedly.
type Supervisor struct {
	launcher     Launcher
	spec         Spec
	opts         Options
	logger       zerolog.Logger
	rng          *rand.Rand
	proc         Process
	reader       *Reader
	state        State
	shuttingDown bool
	restarts     int
}

func NewSupervisor(launcher Launcher, spec Spec, opts Options) (*Supervisor, error) {
	if launcher == nil {
		return nil, fmt.Errorf("%w: nil launcher", ErrInvalidSpec)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.BufSize <= 0 {
		opts.BufSize = DefaultBufSize
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.MaxSpawnAttempts <= 0 {
		opts.MaxSpawnAttempts = 1
	}
	return &Supervisor{
		launcher: launcher,
		spec:     spec,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "worker").Logger(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

func (s *Supervisor) State() State { return s.state }

func (s *Supervisor) Restarts() int { return s.restarts }

// PID returns the live worker's process id, or 0.
func (s *Supervisor) PID() int {
	if s.proc == nil || s.state != StateAlive {
		return 0
	}
	return s.proc.PID()
}

// Reader returns the live worker's output buffer, or nil.
func (s *Supervisor) Reader() *Reader {
	if s.state != StateAlive {
		return nil
	}
	return s.reader
}

// Start launches the worker, retrying failed launches with backoff. It is a
// no-op while a worker is alive.
func (s *Supervisor) Start(ctx context.Context) error {
	if s.state == StateAlive {
		return nil
	}
	s.shuttingDown = false
	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxSpawnAttempts; attempt++ {
		err := s.spawn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("worker spawn failed")
		if attempt == s.opts.MaxSpawnAttempts {
			break
		}
		delay := NextBackoffDelay(s.opts.Backoff, attempt, s.rng)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.state = StateDead
			return errors.Join(ErrSpawnFailed, ctx.Err())
		}
	}
	s.state = StateDead
	return fmt.Errorf("%w: %w", ErrSpawnFailed, lastErr)
}

func (s *Supervisor) spawn(ctx context.Context) error {
	proc, err := s.launcher.Launch(s.spec)
	if err != nil {
		return err
	}
	reader := NewReader(proc.Stdout(), s.opts.BufSize)

	// One read for the startup banner; whatever arrives is discarded.
	if _, err := reader.Fill(ctx, s.opts.ReadTimeout); err != nil {
		reader.Close()
		proc.Stdin().Close()
		s.reap(proc)
		return fmt.Errorf("startup read: %w", err)
	}
	banner := reader.Discard()

	s.proc = proc
	s.reader = reader
	s.state = StateAlive
	s.logger.Info().
		Str("binary", s.spec.Binary).
		Strs("args", s.spec.Args()).
		Int("pid", proc.PID()).
		Int("banner_bytes", banner).
		Msg("worker started")
	return nil
}

// Send writes one command line to the worker. A worker left Dead by an
// earlier failed relaunch is started first. A failed write is treated as
// worker death and returns an error wrapping protocol.ErrDeath.
func (s *Supervisor) Send(ctx context.Context, line string) error {
	if s.shuttingDown {
		return ErrShuttingDown
	}
	if s.state != StateAlive {
		if err := s.Start(ctx); err != nil {
			return err
		}
	}
	if _, err := io.WriteString(s.proc.Stdin(), line); err != nil {
		cause := fmt.Errorf("%w: write: %v", protocol.ErrDeath, err)
		if herr := s.HandleDeath(ctx, cause); herr != nil {
			return errors.Join(cause, herr)
		}
		return cause
	}
	s.logger.Debug().Str("line", strings.TrimRight(line, "\n")).Msg("sent")
	return nil
}

// HandleDeath reaps the dead worker and, unless a shutdown is in progress,
// launches a replacement. Output left from the dead worker is discarded.
func (s *Supervisor) HandleDeath(ctx context.Context, cause error) error {
	if s.proc == nil {
		return nil
	}
	s.state = StateDead
	pid := s.proc.PID()
	s.release()

	if s.shuttingDown {
		s.state = StateStopped
		s.logger.Info().Int("pid", pid).Msg("worker exited")
		return nil
	}

	s.logger.Warn().Err(cause).Int("pid", pid).Msg("worker died; restarting")
	s.state = StateRestarting
	s.restarts++
	if err := s.Start(ctx); err != nil {
		return err
	}
	if s.opts.OnRestart != nil {
		s.opts.OnRestart()
	}
	return nil
}

// Finish asks the worker to quit, drains its output until it exits and
// reaps it. The worker is killed if it is still running after
// ShutdownGrace. Finish is a no-op when no worker is running.
func (s *Supervisor) Finish(ctx context.Context) error {
	if s.proc == nil || s.state != StateAlive {
		s.state = StateStopped
		return nil
	}
	s.shuttingDown = true
	pid := s.proc.PID()
	if _, err := io.WriteString(s.proc.Stdin(), QuitLine); err != nil {
		s.logger.Debug().Err(err).Msg("quit write failed")
	}

	deadline := time.Now().Add(s.opts.ShutdownGrace)
	var drainErr error
	for {
		_, err := s.reader.Fill(ctx, s.opts.ReadTimeout)
		s.reader.Discard()
		if errors.Is(err, protocol.ErrDeath) {
			break
		}
		if err != nil {
			drainErr = err
			break
		}
		if time.Now().After(deadline) {
			s.logger.Warn().Int("pid", pid).Dur("grace", s.opts.ShutdownGrace).Msg("worker ignored quit; killing")
			if kerr := s.proc.Kill(); kerr != nil {
				drainErr = kerr
			}
			break
		}
	}
	if drainErr != nil {
		s.proc.Kill()
	}
	s.release()
	s.state = StateStopped
	s.logger.Info().Int("pid", pid).Msg("worker stopped")
	return drainErr
}

func (s *Supervisor) release() {
	if s.reader != nil {
		s.reader.Close()
		s.reader = nil
	}
	if s.proc != nil {
		s.proc.Stdin().Close()
		s.reap(s.proc)
		s.proc = nil
	}
}

// reap waits for proc to exit, killing it after ShutdownGrace.
func (s *Supervisor) reap(proc Process) {
	done := make(chan error, 1)
	go func() { done <- proc.Wait() }()
	timer := time.NewTimer(s.opts.ShutdownGrace)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			s.logger.Debug().Err(err).Msg("worker exit status")
		}
	case <-timer.C:
		s.logger.Warn().Int("pid", proc.PID()).Msg("worker did not exit; killing")
		proc.Kill()
		<-done
	}
}
