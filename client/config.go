package client

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/mupipe/internal/worker"
	"github.com/rs/zerolog"
)

const (
	DefaultTimeout  = 500 * time.Millisecond
	DefaultBufSize  = worker.DefaultBufSize
	DefaultMaxTries = 0
)

type (
	Spec          = worker.Spec
	Process       = worker.Process
	Launcher      = worker.Launcher
	LocalLauncher = worker.LocalLauncher
	SSHLauncher   = worker.SSHLauncher
	State         = worker.State
)

const (
	StateStopped    = worker.StateStopped
	StateAlive      = worker.StateAlive
	StateDead       = worker.StateDead
	StateRestarting = worker.StateRestarting
)

// Backoff is the delay schedule between failed relaunch attempts.
type Backoff struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// ProgressFunc observes non-terminal frames of a streaming command.
type ProgressFunc func(command string, frame map[string]any)

// Config defines how an Engine launches and talks to its worker.
type Config struct {
	Binary     string
	Subcommand string
	HomeDir    string
	HomeFlag   string
	// MailDir is the mail store location handed to the worker.
	MailDir string
	Env     []string

	// Timeout bounds each wait for worker output.
	Timeout time.Duration
	// BufSize is the most bytes taken from the worker per read.
	BufSize int
	// MaxTries bounds the extra reads spent on one short frame. Zero retries
	// without bound.
	MaxTries      int
	MaxFrameBytes int

	ShutdownGrace    time.Duration
	MaxSpawnAttempts int
	Backoff          Backoff

	// Launcher starts workers; nil runs them locally.
	Launcher Launcher
	// Logger defaults to the global zerolog logger.
	Logger   *zerolog.Logger
	Progress ProgressFunc
	Registry *Registry
}

func DefaultConfig() Config {
	b := worker.DefaultBackoff()
	return Config{
		Binary:           worker.DefaultBinary,
		Subcommand:       worker.DefaultSubcommand,
		HomeFlag:         worker.DefaultHomeFlag,
		Timeout:          DefaultTimeout,
		BufSize:          DefaultBufSize,
		MaxTries:         DefaultMaxTries,
		MaxFrameBytes:    64 * 1024 * 1024,
		ShutdownGrace:    worker.DefaultShutdownGrace,
		MaxSpawnAttempts: worker.DefaultMaxSpawnAttempts,
		Backoff: Backoff{
			InitialDelay: b.InitialDelay,
			Multiplier:   b.Multiplier,
			MaxDelay:     b.MaxDelay,
			Jitter:       b.Jitter,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Binary) == "" {
		return fmt.Errorf("%w: missing binary", ErrInvalidConfig)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive", ErrInvalidConfig)
	}
	if c.BufSize <= 0 {
		return fmt.Errorf("%w: bufsize must be positive", ErrInvalidConfig)
	}
	if c.MaxTries < 0 {
		return fmt.Errorf("%w: max_tries must not be negative", ErrInvalidConfig)
	}
	if c.MaxFrameBytes < 0 {
		return fmt.Errorf("%w: max_frame_bytes must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c Config) spec() worker.Spec {
	return worker.Spec{
		Binary:     strings.TrimSpace(c.Binary),
		Subcommand: c.Subcommand,
		HomeDir:    c.HomeDir,
		HomeFlag:   c.HomeFlag,
		MailDir:    c.MailDir,
		Env:        c.Env,
	}
}

func (c Config) options(logger zerolog.Logger, onRestart func()) worker.Options {
	return worker.Options{
		ReadTimeout:      c.Timeout,
		BufSize:          c.BufSize,
		ShutdownGrace:    c.ShutdownGrace,
		MaxSpawnAttempts: c.MaxSpawnAttempts,
		Backoff: worker.BackoffConfig{
			InitialDelay: c.Backoff.InitialDelay,
			Multiplier:   c.Backoff.Multiplier,
			MaxDelay:     c.Backoff.MaxDelay,
			Jitter:       c.Backoff.Jitter,
		},
		Logger:    logger,
		OnRestart: onRestart,
	}
}
